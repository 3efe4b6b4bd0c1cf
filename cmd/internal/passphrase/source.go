package passphrase

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// MinLength is the shortest passphrase accepted for a keystore.
const MinLength = 8

var (
	ErrNoTerminal = errors.New("keystore passphrase required and no terminal available")
	ErrMismatch   = errors.New("passphrases do not match")
)

// Source resolves the passphrase protecting a keystore. A passphrase file
// wins over the environment variable, which wins over an interactive prompt.
// The first resolution is cached.
type Source struct {
	envVar  string
	file    string
	confirm bool

	lookup   func(string) (string, bool)
	readFile func(string) ([]byte, error)
	prompt   func(label string) (string, error)

	once  sync.Once
	value string
	err   error
}

// Option customises a Source.
type Option func(*Source)

// FromFile reads the passphrase from path. A single trailing newline is
// stripped.
func FromFile(path string) Option {
	return func(s *Source) { s.file = strings.TrimSpace(path) }
}

// WithConfirmation asks twice when prompting, for commands that create a
// keystore.
func WithConfirmation() Option {
	return func(s *Source) { s.confirm = true }
}

// NewSource constructs a source that checks envVar before prompting on the
// terminal.
func NewSource(envVar string, opts ...Option) *Source {
	s := &Source{
		envVar:   strings.TrimSpace(envVar),
		lookup:   os.LookupEnv,
		readFile: os.ReadFile,
		prompt:   terminalPrompt,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the cached passphrase or resolves it on first use.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.file != "" {
		data, err := s.readFile(s.file)
		if err != nil {
			return "", fmt.Errorf("read passphrase file: %w", err)
		}
		value := strings.TrimSuffix(strings.TrimSuffix(string(data), "\n"), "\r")
		return validate(value, s.file)
	}
	if s.envVar != "" {
		if value, ok := s.lookup(s.envVar); ok {
			return validate(value, s.envVar)
		}
	}

	first, err := s.prompt("Enter keystore passphrase: ")
	if err != nil {
		if errors.Is(err, ErrNoTerminal) && s.envVar != "" {
			return "", fmt.Errorf("keystore passphrase required; set %s or run interactively", s.envVar)
		}
		return "", err
	}
	if _, err := validate(first, "passphrase"); err != nil {
		return "", err
	}
	if s.confirm {
		second, err := s.prompt("Repeat keystore passphrase: ")
		if err != nil {
			return "", err
		}
		if second != first {
			return "", ErrMismatch
		}
	}
	return first, nil
}

func validate(value, origin string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%s is set but empty", origin)
	}
	if len(value) < MinLength {
		return "", fmt.Errorf("%s: passphrase must be at least %d characters", origin, MinLength)
	}
	return value, nil
}

func terminalPrompt(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", ErrNoTerminal
	}
	fmt.Fprint(os.Stderr, label)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(raw), nil
}
