package configuration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var configVars = []string{
	"VITE_SUPABASE_URL", "SUPABASE_SERVICE_ROLE_KEY", "SUPABASE_SERVICE_KEY", "VITE_SUPABASE_ANON_KEY",
	"DATABASE_URL", "STORE_BACKEND", "IMPORT_PAGE_SIZE", "COMMUNITY_OWNER_EMAIL", "LOG_LEVEL", "LOG_PATH",
	"BUBBLE_APP_ID", "BUBBLE_EXPORT_DIR", "BUBBLE_HEADLESS", "BUBBLE_BROWSER_BIN",
}

// clearEnv unsets every variable the configuration reads and restores them
// when the test ends.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configVars {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	origWd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	require.NoError(t, os.Chdir(dir))
}

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, "go.mod"), "module example.com/test\n\ngo 1.22\n")
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "CUTIES_TEST_ENV_LOAD=ok\n")

	sub := filepath.Join(tmp, "pkg", "importer")
	requireMkdirAll(t, sub)
	chdir(t, sub)

	t.Setenv("CUTIES_TEST_ENV_LOAD", "")
	_ = os.Unsetenv("CUTIES_TEST_ENV_LOAD")

	n, err := LoadEnv(DefaultEnvFiles)
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 env file loaded, got %d", n)
	}
	if got := os.Getenv("CUTIES_TEST_ENV_LOAD"); got != "ok" {
		t.Fatalf("expected env var loaded from module root, got %q", got)
	}
}

func TestLoad_DefaultsAndEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	chdir(t, dir)
	requireWriteFile(t, filepath.Join(dir, ".env"), "VITE_SUPABASE_URL=https://proj.supabase.co\nVITE_SUPABASE_ANON_KEY=anon\nLOG_LEVEL=debug\n")

	c, err := Load(DefaultEnvFiles)
	require.NoError(t, err)
	t.Cleanup(c.Unload)

	require.Equal(t, BackendREST, c.StoreBackend)
	require.Equal(t, 1000, c.PageSize)
	require.Equal(t, "clink-61483", c.Bubble.AppID)
	require.Equal(t, "./bubble-exports", c.Bubble.ExportDir)
	require.Equal(t, logrus.DebugLevel, c.LogrusLogLevel())
	require.Equal(t, logrus.DebugLevel, c.Logger().GetLevel())
	require.NoError(t, c.RequireStore())
	require.True(t, c.Supabase.UsesAnonKey())
}

func TestSupabaseKeyPrecedence(t *testing.T) {
	s := SupabaseOptions{ServiceRoleKey: "role", ServiceKey: "svc", AnonKey: "anon"}
	key, src := s.Key()
	require.Equal(t, "role", key)
	require.Equal(t, "SUPABASE_SERVICE_ROLE_KEY", src)

	s.ServiceRoleKey = " "
	key, src = s.Key()
	require.Equal(t, "svc", key)
	require.Equal(t, "SUPABASE_SERVICE_KEY", src)

	s.ServiceKey = ""
	require.True(t, s.UsesAnonKey())

	s.AnonKey = ""
	key, _ = s.Key()
	require.Empty(t, key)
}

func TestRequireStore(t *testing.T) {
	c := &Configuration{StoreBackend: BackendREST}
	err := c.RequireStore()
	require.ErrorIs(t, err, ErrMissingCredentials)
	require.Contains(t, err.Error(), "SUPABASE_SERVICE_ROLE_KEY")

	c.Supabase = SupabaseOptions{URL: "not a url", ServiceKey: "k"}
	require.Error(t, c.RequireStore())

	c = &Configuration{StoreBackend: BackendPostgres}
	require.ErrorIs(t, c.RequireStore(), ErrMissingCredentials)
	c.Database.URL = "postgres://localhost/db"
	require.NoError(t, c.RequireStore())
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())
	t.Setenv("STORE_BACKEND", "mongo")

	_, err := Load(DefaultEnvFiles)
	require.Error(t, err)
	require.Contains(t, err.Error(), "STORE_BACKEND")
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func requireMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}
