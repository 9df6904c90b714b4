package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"yotoup/internal/auth"
	"yotoup/internal/testsupport"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
}

// setupCLITestEnv writes a config file whose state lives under a temp dir and
// whose endpoints point at serverURL.
func setupCLITestEnv(t *testing.T, serverURL string) cliTestEnv {
	t.Helper()
	base := t.TempDir()
	configPath := filepath.Join(base, "config.toml")
	body := fmt.Sprintf(`[paths]
config_dir = %q
data_dir = %q
log_dir = %q

[auth]
base_url = %q
auto_device_flow = false

[api]
base_url = %q

[upload]
concurrency = 2
poll_interval_ms = 1
max_poll_attempts = 5

[logging]
level = "error"
`,
		filepath.Join(base, "config"),
		filepath.Join(base, "data"),
		filepath.Join(base, "logs"),
		serverURL,
		serverURL,
	)
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cliTestEnv{baseDir: base, configPath: configPath}
}

// storeValidTokens writes a token pair that stays valid for an hour.
func (e cliTestEnv) storeValidTokens(t *testing.T) {
	t.Helper()
	store := auth.NewFileTokenStore(filepath.Join(e.baseDir, "config", "tokens.json"))
	pair := auth.TokenPair{
		AccessToken:  testsupport.AccessToken(t, time.Now().Add(time.Hour)),
		RefreshToken: "refresh-1",
	}
	if err := store.Save(pair); err != nil {
		t.Fatalf("save tokens: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func decodeJSON(t *testing.T, data string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(data), v); err != nil {
		t.Fatalf("decode json: %v\n%s", err, data)
	}
}
