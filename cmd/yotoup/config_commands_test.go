package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t, "http://127.0.0.1:1")

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, filepath.Join(env.baseDir, "data", "batches.db"))

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}

func TestAuthStatusWithoutTokens(t *testing.T) {
	env := setupCLITestEnv(t, "http://127.0.0.1:1")

	out, _, err := runCLI(t, []string{"auth", "status", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("auth status: %v", err)
	}
	var payload map[string]any
	decodeJSON(t, out, &payload)
	if payload["authenticated"] != false || payload["has_refresh_token"] != false {
		t.Fatalf("unexpected status %v", payload)
	}
}

func TestAuthStatusWithTokens(t *testing.T) {
	env := setupCLITestEnv(t, "http://127.0.0.1:1")
	env.storeValidTokens(t)

	out, _, err := runCLI(t, []string{"auth", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("auth status: %v", err)
	}
	requireContains(t, out, "[OK] valid until")

	out, _, err = runCLI(t, []string{"auth", "logout"}, env.configPath)
	if err != nil {
		t.Fatalf("auth logout: %v", err)
	}
	requireContains(t, out, "Stored tokens removed")
	if _, err := os.Stat(filepath.Join(env.baseDir, "config", "tokens.json")); !os.IsNotExist(err) {
		t.Fatalf("expected token file removed, stat err=%v", err)
	}
}
