package vars

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestIsDotEnvPath(t *testing.T) {
	t.Parallel()

	for path, want := range map[string]bool{
		".env":          true,
		".env.staging":  true,
		"local.env":     true,
		"envs.yaml":     false,
		"settings.json": false,
		"notes.txt":     false,
	} {
		if got := IsDotEnvPath(path); got != want {
			t.Fatalf("IsDotEnvPath(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	t.Parallel()

	path := writeTempFile(t, ".env.staging", strings.Join([]string{
		"# comment",
		"export HOST=api.example.com",
		`GREETING="hello\nworld"`,
		"LITERAL='${HOST}'",
		"URL=https://${HOST}/v1 # inline comment",
		"",
	}, "\n"))

	env, err := LoadDotEnv(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if env.Name != "staging" {
		t.Fatalf("unexpected env name %q", env.Name)
	}
	if env.Variables["HOST"] != "api.example.com" {
		t.Fatalf("unexpected HOST %q", env.Variables["HOST"])
	}
	if env.Variables["GREETING"] != "hello\nworld" {
		t.Fatalf("double-quote escapes not applied: %q", env.Variables["GREETING"])
	}
	if env.Variables["LITERAL"] != "${HOST}" {
		t.Fatalf("single-quoted value expanded: %q", env.Variables["LITERAL"])
	}
	if env.Variables["URL"] != "https://api.example.com/v1" {
		t.Fatalf("interpolation failed: %q", env.Variables["URL"])
	}
}

func TestLoadDotEnvUndefinedReference(t *testing.T) {
	t.Parallel()

	path := writeTempFile(t, ".env", "URL=${NOPE_NOT_SET_ANYWHERE_42}\n")
	if _, err := LoadDotEnv(path); err == nil {
		t.Fatal("expected error for undefined reference")
	}
}

func TestLoadDotEnvOSFallback(t *testing.T) {
	t.Setenv("REQSTAGE_TEST_TOKEN", "from-os")

	path := writeTempFile(t, ".env", "TOKEN=${REQSTAGE_TEST_TOKEN}\n")
	env, err := LoadDotEnv(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if env.Variables["TOKEN"] != "from-os" {
		t.Fatalf("expected OS fallback, got %q", env.Variables["TOKEN"])
	}
}

func TestLoadEnvironmentsYAML(t *testing.T) {
	t.Parallel()

	path := writeTempFile(t, "envs.yaml", strings.Join([]string{
		"production:",
		"  baseUrl: https://api.example.com",
		"staging:",
		"  baseUrl: https://staging.example.com",
		"  debug: \"1\"",
	}, "\n"))

	envs, err := LoadEnvironments(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(envs) != 2 {
		t.Fatalf("expected 2 environments, got %d", len(envs))
	}
	if envs[0].Name != "production" || envs[1].Name != "staging" {
		t.Fatalf("unexpected order %q, %q", envs[0].Name, envs[1].Name)
	}
	if envs[1].Variables["debug"] != "1" {
		t.Fatalf("unexpected staging vars %v", envs[1].Variables)
	}
}

func TestSelectEnv(t *testing.T) {
	t.Parallel()

	envs, err := LoadEnvironments(writeTempFile(t, "one.yaml", "dev:\n  a: b\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := SelectEnv(envs, ""); got == nil || got.Name != "dev" {
		t.Fatalf("single environment should be selected by default, got %v", got)
	}
	if got := SelectEnv(envs, "DEV"); got == nil {
		t.Fatal("name match should be case-insensitive")
	}
	if got := SelectEnv(envs, "prod"); got != nil {
		t.Fatalf("expected nil for unknown name, got %v", got)
	}
}
