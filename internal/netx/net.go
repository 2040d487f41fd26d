package netx

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// MaxBodySize bounds how much of a response GetBody will read.
const MaxBodySize = 1 << 20

// GetBody issues a GET to url and returns the response body. Any status
// other than 200 is an error carrying the status and a body excerpt.
func GetBody(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if len(b) > 256 {
			b = b[:256]
		}
		return nil, fmt.Errorf("unexpected status: %s; body: %s", resp.Status, string(b))
	}
	return b, nil
}
