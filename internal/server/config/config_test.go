package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the .env lookup at an empty directory and clears the
// variables these tests assert on.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	orig := dotEnvFile
	dotEnvFile = filepath.Join(dir, ".env")
	t.Cleanup(func() { dotEnvFile = orig })

	for _, k := range []string{"PORT", "JWT_SECRET", "TOKEN_TTL", "WECHAT_APPID", "WECHAT_SECRET",
		"WECHAT_TIMEOUT", "STORE_BACKEND", "REDIS_ADDR", "KNOWLEDGE_FILE", "LOG_BACKEND"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	return dir
}

func defaults() *Config {
	c := &Config{}
	c.LoadDefaults()
	return c
}

func TestLoadDefaults(t *testing.T) {
	c := defaults()

	assert.Equal(t, 3000, c.Port)
	assert.Equal(t, ":3000", c.HTTPAddr())
	assert.Equal(t, ":50051", c.GRPCAddr)
	assert.Equal(t, DefaultSecret, c.JWTSecret)
	assert.Equal(t, 30*24*time.Hour, c.TokenTTL)
	assert.Equal(t, "https://api.weixin.qq.com", c.WechatEndpoint)
	assert.Equal(t, 10*time.Second, c.WechatTimeout)
	assert.Equal(t, BackendFile, c.StoreBackend)
	assert.Equal(t, "data/users.json", c.UserDataFile)
	assert.Equal(t, "data/knowledge.json", c.KnowledgeFile)
	assert.Equal(t, "slog", c.LogBackend)
	assert.True(t, c.UsesDefaultSecret())
	assert.False(t, c.ProviderConfigured())
}

func TestLoad_DefaultsOnly(t *testing.T) {
	isolate(t)

	c, err := Load(nil)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(defaults(), c))
}

func TestLoad_Environment(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "8080")
	t.Setenv("JWT_SECRET", "s3cr3t")
	t.Setenv("TOKEN_TTL", "1h")
	t.Setenv("WECHAT_APPID", "wx123")
	t.Setenv("WECHAT_SECRET", "shh")
	t.Setenv("STORE_BACKEND", "redis")

	c, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Port)
	assert.Equal(t, "s3cr3t", c.JWTSecret)
	assert.Equal(t, time.Hour, c.TokenTTL)
	assert.Equal(t, BackendRedis, c.StoreBackend)
	assert.False(t, c.UsesDefaultSecret())
	assert.True(t, c.ProviderConfigured())
	assert.Equal(t, "data/users.json", c.UserDataFile, "unset variables keep defaults")
}

func TestLoad_EnvironmentBadValue(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "not-a-number")

	_, err := Load(nil)
	require.Error(t, err)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LOG_BACKEND=zap\nKNOWLEDGE_FILE=/srv/k.json\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("LOG_BACKEND")
		os.Unsetenv("KNOWLEDGE_FILE")
	})

	c, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "zap", c.LogBackend)
	assert.Equal(t, "/srv/k.json", c.KnowledgeFile)
}

func TestLoad_JsonOverlay(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"port": 9000,
		"jwt_secret": "from-json",
		"token_ttl": "48h",
		"wechat_timeout": 5000000000,
		"store_backend": "postgres",
		"database_dsn": "postgres://x"
	}`), 0o600))

	c, err := Load([]string{"-c", path})
	require.NoError(t, err)

	want := defaults()
	want.Port = 9000
	want.JWTSecret = "from-json"
	want.TokenTTL = 48 * time.Hour
	want.WechatTimeout = 5 * time.Second
	want.StoreBackend = BackendPostgres
	want.DatabaseDSN = "postgres://x"
	assert.Empty(t, cmp.Diff(want, c))
}

func TestLoad_JsonErrors(t *testing.T) {
	dir := isolate(t)

	_, err := Load([]string{"-config", filepath.Join(dir, "missing.json")})
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{`), 0o600))
	_, err = Load([]string{"-config=" + bad})
	require.Error(t, err)
}

func TestLoad_FlagsWinOverJson(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": 9000, "store_backend": "postgres"}`), 0o600))

	c, err := Load([]string{"-c", path, "-p", "7000", "-b", "redis", "-r", "cache:6379", "-t", "2h", "-unknown", "x"})
	require.NoError(t, err)

	assert.Equal(t, 7000, c.Port)
	assert.Equal(t, BackendRedis, c.StoreBackend)
	assert.Equal(t, "cache:6379", c.RedisAddr)
	assert.Equal(t, 2*time.Hour, c.TokenTTL)
}

func TestParseFlags_Invalid(t *testing.T) {
	c := defaults()
	require.Error(t, parseFlags(c, []string{"-p", "abc"}))
}
