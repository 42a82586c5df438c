// Package secrets resolves credentials given in the configuration. A value
// is used literally, may reference environment variables as ${VAR} or
// ${VAR:-default}, or can be replaced by a mounted secret file such as a
// Docker or Kubernetes secret. Secret values are never logged.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/eventlog-migrator/internal/errors"
)

// maxFileSize limits secret file reads; secrets are passwords and DSNs.
const maxFileSize = 64 * 1024

// Expand replaces ${VAR} and ${VAR:-default} references in s. A referenced
// variable that is unset and has no default is an error.
func Expand(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", secretError(fmt.Errorf("missing environment variable(s): %s", strings.Join(missing, ", "))).Build()
	}
	return expanded, nil
}

// ReadFile returns the contents of a secret file without trailing newlines.
// Files readable by group or others are accepted with a warning on stderr,
// since mounted secrets often come with 0o644.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", secretError(fmt.Errorf("secret file path is empty")).Build()
	}
	cleanPath := filepath.Clean(path)

	info, err := os.Stat(cleanPath)
	switch {
	case err != nil:
		return "", secretError(fmt.Errorf("failed to stat secret file: %w", err)).Context("file", cleanPath).Build()
	case !info.Mode().IsRegular():
		return "", secretError(fmt.Errorf("secret path is not a regular file")).Context("file", cleanPath).Build()
	case info.Size() > maxFileSize:
		return "", secretError(fmt.Errorf("secret file larger than %d bytes", maxFileSize)).Context("file", cleanPath).Build()
	}

	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		fmt.Fprintf(os.Stderr, "WARNING: secret file %s is accessible by group or others (perms: %04o)\n", cleanPath, perm)
	}

	data, err := os.ReadFile(cleanPath) //nolint:gosec // path comes from operator config
	if err != nil {
		return "", secretError(fmt.Errorf("failed to read secret file: %w", err)).Context("file", cleanPath).Build()
	}

	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", secretError(fmt.Errorf("secret file is empty")).Context("file", cleanPath).Build()
	}
	return secret, nil
}

// Resolve picks the secret from filePath when set, otherwise expands value.
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	return Expand(value)
}

func secretError(err error) *errors.ErrorBuilder {
	return errors.New(err).
		Component("secrets").
		Category(errors.CategoryConfiguration)
}
