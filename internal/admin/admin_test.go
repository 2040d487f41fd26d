package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhangleigang/knowledge-api/internal/common"
	"github.com/zhangleigang/knowledge-api/internal/logging"
	"github.com/zhangleigang/knowledge-api/internal/server/models"
	"github.com/zhangleigang/knowledge-api/internal/server/repositories/users"
)

func seeded(t *testing.T) users.Repository {
	t.Helper()
	ctx := context.Background()
	r, err := users.NewFileRepository(ctx, filepath.Join(t.TempDir(), "users.json"), logging.NopLogger{})
	require.NoError(t, err)

	_, err = r.Create(ctx, models.NewUser{OpenID: "o-1", SessionKey: "secret-1", Phone: "138****1234"})
	require.NoError(t, err)
	_, err = r.Create(ctx, models.NewUser{OpenID: "o-2", SessionKey: "secret-2"})
	require.NoError(t, err)
	return r
}

func run(t *testing.T, repo users.Repository, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := NewApp(repo, strings.NewReader(stdin), &out).Run(context.Background(), args)
	return out.String(), err
}

func withTerminal(t *testing.T, tty bool) {
	t.Helper()
	old := stdinIsTerminal
	stdinIsTerminal = func() bool { return tty }
	t.Cleanup(func() { stdinIsTerminal = old })
}

func TestRun_List(t *testing.T) {
	out, err := run(t, seeded(t), "", "list")
	require.NoError(t, err)

	assert.Contains(t, out, "user_1")
	assert.Contains(t, out, "o-2")
	assert.Contains(t, out, "138****1234")
	assert.Contains(t, out, "2 user(s)")
	assert.NotContains(t, out, "secret-1")
}

func TestRun_Stats(t *testing.T) {
	out, err := run(t, seeded(t), "", "stats")
	require.NoError(t, err)

	assert.Contains(t, out, "total users: 2")
	assert.Contains(t, out, "user_3")
}

func TestRun_GetRedactsSessionKey(t *testing.T) {
	out, err := run(t, seeded(t), "", "get", "user_1")
	require.NoError(t, err)

	var u models.User
	require.NoError(t, json.Unmarshal([]byte(out), &u))
	assert.Equal(t, "o-1", u.OpenID)
	assert.Equal(t, "***", u.SessionKey)

	_, err = run(t, seeded(t), "", "get", "user_99")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRun_DeleteWithYes(t *testing.T) {
	repo := seeded(t)
	withTerminal(t, false)

	out, err := run(t, repo, "", "delete", "-y", "user_2")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted user_2")

	_, err = repo.GetByID(context.Background(), "user_2")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRun_DeleteRefusesWithoutTerminal(t *testing.T) {
	repo := seeded(t)
	withTerminal(t, false)

	_, err := run(t, repo, "y\n", "delete", "user_1")
	assert.ErrorIs(t, err, ErrAborted)

	_, err = repo.GetByID(context.Background(), "user_1")
	assert.NoError(t, err)
}

func TestRun_DeleteConfirmation(t *testing.T) {
	withTerminal(t, true)

	t.Run("accepted", func(t *testing.T) {
		repo := seeded(t)
		out, err := run(t, repo, "yes\n", "delete", "user_1")
		require.NoError(t, err)
		assert.Contains(t, out, "Delete user_1 (openid o-1)?")

		_, err = repo.GetByID(context.Background(), "user_1")
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("declined", func(t *testing.T) {
		repo := seeded(t)
		_, err := run(t, repo, "n\n", "delete", "user_1")
		assert.ErrorIs(t, err, ErrAborted)

		_, err = repo.GetByID(context.Background(), "user_1")
		assert.NoError(t, err)
	})

	t.Run("eof", func(t *testing.T) {
		repo := seeded(t)
		_, err := run(t, repo, "", "delete", "user_1")
		assert.ErrorIs(t, err, ErrAborted)
	})
}

func TestRun_DeleteUnknown(t *testing.T) {
	_, err := run(t, seeded(t), "", "delete", "user_42", "-y")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRun_Usage(t *testing.T) {
	cases := [][]string{
		nil,
		{"drop"},
		{"get"},
		{"get", "a", "b"},
		{"delete"},
		{"delete", "-y"},
		{"delete", "a", "b"},
		{"delete", "a", "-force"},
	}
	for _, args := range cases {
		_, err := run(t, seeded(t), "", args...)
		assert.ErrorIs(t, err, ErrUsage, "args %v", args)
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 2, ExitCode(ErrUsage))
	assert.Equal(t, 1, ExitCode(ErrAborted))
	assert.Equal(t, 1, ExitCode(common.ErrNotFound))
	assert.Equal(t, 3, ExitCode(errors.New("boom")))
}
