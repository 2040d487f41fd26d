package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhangleigang/knowledge-api/internal/common"
)

var fixedNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func newTestCodec(secret string, now *time.Time) *Codec {
	return NewCodecWithClock(secret, func() time.Time { return *now })
}

func TestIssueAndVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	now := fixedNow
	c := newTestCodec("super-secret", &now)

	claims := map[string]any{"userId": "user_1", "openid": "o-1", "n": 7.0}
	tok, err := c.Issue(claims, time.Hour)
	require.NoError(t, err)
	assert.Len(t, strings.Split(tok, "."), 3)

	got, err := c.Verify(tok)
	require.NoError(t, err)

	assert.Equal(t, "user_1", got["userId"])
	assert.Equal(t, "o-1", got["openid"])
	assert.Equal(t, 7.0, got["n"])
	assert.Equal(t, float64(fixedNow.Unix()), got["iat"])
	assert.Equal(t, float64(fixedNow.Add(time.Hour).Unix()), got["exp"])
	assert.Len(t, got, 5)

	// Caller's map is not mutated.
	assert.NotContains(t, claims, "iat")
}

func TestVerify_ValidUntilExpiry(t *testing.T) {
	t.Parallel()

	now := fixedNow
	c := newTestCodec("k", &now)

	tok, err := c.Issue(map[string]any{"userId": "u"}, 10*time.Second)
	require.NoError(t, err)

	now = fixedNow.Add(9 * time.Second)
	_, err = c.Verify(tok)
	require.NoError(t, err)

	now = fixedNow.Add(10 * time.Second)
	_, err = c.Verify(tok)
	assert.ErrorIs(t, err, common.ErrInvalidToken, "exp <= now must fail")
}

func TestVerify_NegativeTTLExpired(t *testing.T) {
	t.Parallel()

	c := NewCodec("secret")
	tok, err := c.Issue(map[string]any{"userId": "u1"}, -1*time.Second)
	require.NoError(t, err)

	_, err = c.Verify(tok)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerify_LargeTTLImmediate(t *testing.T) {
	t.Parallel()

	c := NewCodec("secret")
	tok, err := c.Issue(map[string]any{"userId": "u1"}, 100*365*24*time.Hour)
	require.NoError(t, err)

	_, err = c.Verify(tok)
	assert.NoError(t, err)
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := NewCodec("right-secret").Issue(map[string]any{"userId": "u2"}, time.Hour)
	require.NoError(t, err)

	_, err = NewCodec("wrong-secret").Verify(tok)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerify_Malformed(t *testing.T) {
	t.Parallel()

	c := NewCodec("k")
	valid, err := c.Issue(map[string]any{"userId": "u"}, time.Hour)
	require.NoError(t, err)
	parts := strings.Split(valid, ".")

	cases := map[string]string{
		"empty":           "",
		"one segment":     "abc",
		"two segments":    parts[0] + "." + parts[1],
		"four segments":   valid + ".x",
		"empty signature": parts[0] + "." + parts[1] + ".",
		"empty header":    "." + parts[1] + "." + parts[2],
		"not a jwt":       "not.a.jwt",
	}

	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := c.Verify(tok)
			assert.ErrorIs(t, err, common.ErrInvalidToken)
		})
	}
}

func TestVerify_PayloadNotJSON(t *testing.T) {
	t.Parallel()

	now := fixedNow
	c := newTestCodec("k", &now)

	// Sign a payload that is valid base64 but not JSON.
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`not json`))
	sig, err := c.signForTest(header + "." + payload)
	require.NoError(t, err)

	_, err = c.Verify(header + "." + payload + "." + sig)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerify_NoExpClaimIsAccepted(t *testing.T) {
	t.Parallel()

	c := NewCodec("k")
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"userId":"u"}`))
	sig, err := c.signForTest(header + "." + payload)
	require.NoError(t, err)

	got, err := c.Verify(header + "." + payload + "." + sig)
	require.NoError(t, err)
	assert.Equal(t, "u", got["userId"])
}

func TestVerify_TamperAnyCharacter(t *testing.T) {
	t.Parallel()

	now := fixedNow
	c := newTestCodec("tamper-secret", &now)
	tok, err := c.Issue(map[string]any{"userId": "user_9", "openid": "o-9"}, time.Hour)
	require.NoError(t, err)

	for i := 0; i < len(tok); i++ {
		if tok[i] == '.' {
			continue
		}
		repl := byte('A')
		if tok[i] == 'A' {
			repl = 'B'
		}
		tampered := tok[:i] + string(repl) + tok[i+1:]

		_, err := c.Verify(tampered)
		assert.ErrorIs(t, err, common.ErrInvalidToken, "flip at %d should fail", i)
	}
}

func TestIssue_HeaderShape(t *testing.T) {
	t.Parallel()

	tok, err := NewCodec("k").Issue(nil, time.Minute)
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(strings.Split(tok, ".")[0])
	require.NoError(t, err)

	var header map[string]string
	require.NoError(t, json.Unmarshal(raw, &header))
	assert.Equal(t, map[string]string{"alg": "HS256", "typ": "JWT"}, header)
	assert.NotContains(t, tok, "=")
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	c := NewCodec("k")
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"userId":"u"}`))

	_, err := c.Verify(header + "." + payload + ".c2ln")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestExtractFromHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "", false},
		{"Bearer", "", false},
		{"", "", false},
		{"Bearer ", "", false},
		{"Bearer a b", "", false},
		{"Bearer  abc", "", false},
		{"Basic abc", "", false},
	}

	for _, tt := range tests {
		got, ok := ExtractFromHeader(tt.header)
		assert.Equal(t, tt.ok, ok, "header %q", tt.header)
		assert.Equal(t, tt.want, got, "header %q", tt.header)
	}
}
