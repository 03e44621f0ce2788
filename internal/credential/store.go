// Package credential persists the single API key voicegen needs.
//
// The key lives in a small text file holding one assignment line of the
// form API_KEY = "value". A missing file or line is a normal startup state
// and loads as the empty string.
package credential

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/voicegen/internal/core"
)

// FileName is the credential file looked up beside the executable.
const FileName = "api_key.py"

const (
	keyName         = "API_KEY"
	filePermissions = 0o600
	lineFormat      = "%s = \"%s\"\n"
)

const (
	logFmtLookingUp      = "Looking for API key file at: %s"
	logFmtFileMissing    = "Could not find API key file %s"
	logFmtLineMissing    = "Found %s but no line '%s = ...'"
	logFmtReadFailed     = "Error reading API key file %s: %v"
	errFmtWriteFailed    = "%w: could not save api key to %s: %w"
	logFmtSaved          = "API key saved to %s"
	logFmtExecutableLost = "Could not resolve executable path, using working directory: %v"
)

// Store loads and saves the API key at a fixed path.
type Store struct {
	log  *logger.Logger
	path string
}

// NewStore returns a Store for path. An empty path means DefaultPath.
func NewStore(path string, log *logger.Logger) *Store {
	if path == "" {
		path = DefaultPath(log)
	}

	return &Store{log: log, path: path}
}

// DefaultPath returns FileName beside the running executable.
func DefaultPath(log *logger.Logger) string {
	executable, err := os.Executable()
	if err != nil {
		if log != nil {
			log.Warn(logFmtExecutableLost, err)
		}

		return FileName
	}

	return filepath.Join(filepath.Dir(executable), FileName)
}

// Path returns the file the store reads and writes.
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored key, or "" when none is configured.
// Errors are logged, never returned.
func (s *Store) Load() string {
	s.info(logFmtLookingUp, s.path)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.warn(logFmtFileMissing, s.path)
		} else {
			s.logError(logFmtReadFailed, s.path, err)
		}

		return ""
	}

	value, found := parseKey(data)
	if !found {
		s.warn(logFmtLineMissing, s.path, keyName)

		return ""
	}

	return value
}

// Save overwrites the file with key. Subsequent Load calls return key.
// A key with a line break cannot be stored on one line and is rejected.
func (s *Store) Save(key string) error {
	if strings.ContainsAny(key, "\r\n") {
		return fmt.Errorf("%w: api key must fit on one line", core.ErrInvalidCredential)
	}

	content := fmt.Sprintf(lineFormat, keyName, key)

	err := os.WriteFile(s.path, []byte(content), filePermissions)
	if err != nil {
		return fmt.Errorf(errFmtWriteFailed, core.ErrIOFailure, s.path, err)
	}

	s.info(logFmtSaved, s.path)

	return nil
}

// parseKey finds the first API_KEY assignment and unquotes its value.
func parseKey(data []byte) (string, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(data))

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, keyName) || !strings.Contains(line, "=") {
			continue
		}

		_, value, _ := strings.Cut(line, "=")

		return unquote(strings.TrimSpace(value)), true
	}

	return "", false
}

func unquote(value string) string {
	if len(value) < 2 {
		return value
	}

	first, last := value[0], value[len(value)-1]
	if (first == '"' || first == '\'') && first == last {
		return value[1 : len(value)-1]
	}

	return value
}

func (s *Store) info(format string, args ...any) {
	if s.log != nil {
		s.log.Info(format, args...)
	}
}

func (s *Store) warn(format string, args ...any) {
	if s.log != nil {
		s.log.Warn(format, args...)
	}
}

func (s *Store) logError(format string, args ...any) {
	if s.log != nil {
		s.log.Error(format, args...)
	}
}
