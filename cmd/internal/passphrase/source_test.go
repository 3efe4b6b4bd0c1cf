package passphrase

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func fakeEnv(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func scripted(answers ...string) func(string) (string, error) {
	return func(string) (string, error) {
		if len(answers) == 0 {
			return "", ErrNoTerminal
		}
		next := answers[0]
		answers = answers[1:]
		return next, nil
	}
}

func TestSourceUsesEnvironment(t *testing.T) {
	src := NewSource("STAKECTL_PASSPHRASE")
	src.lookup = fakeEnv(map[string]string{"STAKECTL_PASSPHRASE": " correct horse "})
	got, err := src.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != " correct horse " {
		t.Fatalf("expected exact value, got %q", got)
	}
	src.lookup = fakeEnv(nil)
	if again, _ := src.Get(); again != got {
		t.Fatalf("expected cached value, got %q", again)
	}
}

func TestSourceRejectsWeakEnvironment(t *testing.T) {
	for _, value := range []string{"   ", "short"} {
		src := NewSource("STAKECTL_PASSPHRASE")
		src.lookup = fakeEnv(map[string]string{"STAKECTL_PASSPHRASE": value})
		if _, err := src.Get(); err == nil {
			t.Fatalf("expected %q to be rejected", value)
		}
	}
}

func TestSourcePrefersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pass")
	if err := os.WriteFile(path, []byte("from-the-file\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	src := NewSource("STAKECTL_PASSPHRASE", FromFile(path))
	src.lookup = fakeEnv(map[string]string{"STAKECTL_PASSPHRASE": "from-the-env"})
	got, err := src.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "from-the-file" {
		t.Fatalf("expected file value, got %q", got)
	}
}

func TestSourceConfirmsPrompt(t *testing.T) {
	src := NewSource("", WithConfirmation())
	src.prompt = scripted("hunter22!", "hunter22?")
	if _, err := src.Get(); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}

	src = NewSource("", WithConfirmation())
	src.prompt = scripted("hunter22!", "hunter22!")
	got, err := src.Get()
	if err != nil || got != "hunter22!" {
		t.Fatalf("expected confirmed passphrase, got %q, %v", got, err)
	}
}

func TestSourceWithoutTerminalNamesVariable(t *testing.T) {
	src := NewSource("STAKECTL_PASSPHRASE")
	src.lookup = fakeEnv(nil)
	src.prompt = scripted()
	_, err := src.Get()
	if err == nil || errors.Is(err, ErrNoTerminal) {
		t.Fatalf("expected a hint naming the variable, got %v", err)
	}
}
