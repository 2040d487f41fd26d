// Package admin implements the maintenance commands run against the
// configured user store: listing, inspecting and deleting user records.
package admin

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/zhangleigang/knowledge-api/internal/common"
	"github.com/zhangleigang/knowledge-api/internal/server/repositories/users"
)

var ErrUsage = errors.New("usage: admin [flags] list | stats | get <id> | delete <id> [-y]")

// ErrAborted is returned when the operator declines a confirmation.
var ErrAborted = errors.New("aborted")

// stdinIsTerminal is a test seam for term.IsTerminal.
var stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

type App struct {
	users  users.Repository
	reader *bufio.Reader
	out    io.Writer
}

func NewApp(repo users.Repository, in io.Reader, out io.Writer) *App {
	return &App{users: repo, reader: bufio.NewReader(in), out: out}
}

// Run executes the command in args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]

	switch cmd {
	case "list":
		return a.list(ctx)
	case "stats":
		return a.stats(ctx)
	case "get":
		if len(rest) != 1 {
			return ErrUsage
		}
		return a.get(ctx, rest[0])
	case "delete":
		id, yes, err := parseDeleteArgs(rest)
		if err != nil {
			return err
		}
		return a.delete(ctx, id, yes)
	default:
		return ErrUsage
	}
}

func (a *App) list(ctx context.Context) error {
	all, err := a.users.List(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tOPENID\tPHONE\tNICKNAME\tCREATED\tLAST LOGIN")
	for _, u := range all {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			u.ID, u.OpenID, dash(u.Phone), dash(u.NickName),
			u.CreateTime.UTC().Format(time.RFC3339), u.LastLoginTime.UTC().Format(time.RFC3339))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%d user(s)\n", len(all))
	return nil
}

func (a *App) stats(ctx context.Context) error {
	s, err := a.users.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "total users: %d\nnext id:     %s\n", s.TotalUsers, users.FormatID(s.NextID))
	return nil
}

func (a *App) get(ctx context.Context, id string) error {
	u, err := a.users.GetByID(ctx, id)
	if err != nil {
		return err
	}

	redacted := *u
	if redacted.SessionKey != "" {
		redacted.SessionKey = "***"
	}

	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(redacted)
}

func (a *App) delete(ctx context.Context, id string, yes bool) error {
	u, err := a.users.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if !yes {
		if !stdinIsTerminal() {
			return fmt.Errorf("%w: refusing to delete without -y when stdin is not a terminal", ErrAborted)
		}
		ok, err := a.confirm(fmt.Sprintf("Delete %s (openid %s)? [y/N]", u.ID, u.OpenID))
		if err != nil {
			return err
		}
		if !ok {
			return ErrAborted
		}
	}

	if err := a.users.Delete(ctx, id); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "deleted %s\n", id)
	return nil
}

func (a *App) confirm(prompt string) (bool, error) {
	if _, err := fmt.Fprint(a.out, prompt+" "); err != nil {
		return false, err
	}
	line, err := a.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func parseDeleteArgs(args []string) (string, bool, error) {
	var (
		id  string
		yes bool
	)
	for _, arg := range args {
		switch arg {
		case "-y", "--y", "-yes", "--yes":
			yes = true
		default:
			if id != "" || strings.HasPrefix(arg, "-") {
				return "", false, ErrUsage
			}
			id = arg
		}
	}
	if id == "" {
		return "", false, ErrUsage
	}
	return id, yes, nil
}

// ExitCode maps a command error onto a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUsage):
		return 2
	case errors.Is(err, common.ErrNotFound), errors.Is(err, ErrAborted):
		return 1
	default:
		return 3
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
