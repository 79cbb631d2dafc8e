// Package credential resolves the API key used for chat completion requests.
package credential

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

const credentialsFile = "credentials.yaml"

// ErrNotFound is returned when no key is available and none could be asked for.
var ErrNotFound = errors.New("API key not found in environment or credentials file")

// PromptFunc asks the user for a key.
type PromptFunc func() (string, error)

// Store looks up the API key in the environment, then in the credentials
// file, and finally asks for it and persists the answer.
type Store struct {
	envVar string
	path   string
	prompt PromptFunc
	getenv func(string) string
}

type credentials struct {
	APIKey string `yaml:"api_key"`
}

// Option configures a Store.
type Option func(*Store)

// WithPrompt sets the function used when no key is stored.
func WithPrompt(fn PromptFunc) Option {
	return func(s *Store) { s.prompt = fn }
}

// WithGetenv replaces os.Getenv.
func WithGetenv(fn func(string) string) Option {
	return func(s *Store) { s.getenv = fn }
}

// NewStore returns a Store reading envVar and the credentials file in dir.
func NewStore(envVar, dir string, opts ...Option) *Store {
	s := &Store{
		envVar: envVar,
		path:   filepath.Join(dir, credentialsFile),
		getenv: os.Getenv,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the credentials file location.
func (s *Store) Path() string {
	return s.path
}

// APIKey returns the first key found. A prompted key is saved before it is returned.
func (s *Store) APIKey() (string, error) {
	if s.envVar != "" {
		if key := strings.TrimSpace(s.getenv(s.envVar)); key != "" {
			return key, nil
		}
	}

	key, err := s.Load()
	if err != nil {
		return "", err
	}
	if key != "" {
		return key, nil
	}

	if s.prompt == nil {
		return "", ErrNotFound
	}
	key, err = s.prompt()
	if err != nil {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrNotFound
	}
	if err := s.Save(key); err != nil {
		return "", err
	}
	return key, nil
}

// Load reads the stored key. A missing file is not an error.
func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read credentials: %w", err)
	}

	var creds credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return "", fmt.Errorf("failed to parse credentials: %w", err)
	}
	return strings.TrimSpace(creds.APIKey), nil
}

// Save writes key to the credentials file, readable by the owner only.
func (s *Store) Save(key string) error {
	data, err := yaml.Marshal(credentials{APIKey: key})
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

// TerminalPrompt reads a key from in. On a terminal the input is hidden;
// otherwise the first line is used.
func TerminalPrompt(in *os.File, out io.Writer, envVar string) PromptFunc {
	return func() (string, error) {
		fd := int(in.Fd())
		if !term.IsTerminal(fd) {
			scanner := bufio.NewScanner(in)
			if scanner.Scan() {
				return scanner.Text(), nil
			}
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", errors.New("no input received")
		}

		fmt.Fprintf(out, "Please input your OpenAI API key (%s): ", envVar)
		key, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(key), nil
	}
}
