// Package secrets resolves credentials that may be given literally, as
// ${VAR} references or as files such as Docker and Kubernetes secrets.
// Secret values are never included in errors or logs.
package secrets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/parkapp/parkwatch/internal/errors"
	"github.com/parkapp/parkwatch/internal/logger"
)

// maxSecretFileSize limits secret file reads; secrets are tokens and
// passwords, not documents.
const maxSecretFileSize = 64 * 1024

func secretError(msg string, ctx map[string]any) error {
	b := errors.Newf("%s", msg).
		Component("secrets").
		Category(errors.CategoryConfiguration)
	for k, v := range ctx {
		b = b.Context(k, v)
	}
	return b.Build()
}

// ExpandString expands ${VAR} and ${VAR:-default} references. A reference
// without a default to an unset variable is an error.
func ExpandString(s string) (string, error) {
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
		return "", secretError("missing required environment variable(s): "+strings.Join(missing, ", "),
			map[string]any{"variables": missing})
	}
	return expanded, nil
}

// ReadFile reads a secret file, trimming trailing newlines. Files readable
// by group or others are accepted with a warning.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", secretError("secret file path is empty", nil)
	}
	clean := filepath.Clean(path)

	info, err := os.Stat(clean)
	if err != nil {
		if os.IsNotExist(err) {
			return "", secretError("secret file not found", map[string]any{"path": clean})
		}
		return "", errors.New(err).
			Component("secrets").
			Category(errors.CategoryFileIO).
			Context("path", clean).
			Build()
	}
	if !info.Mode().IsRegular() {
		return "", secretError("secret path is not a regular file", map[string]any{"path": clean})
	}
	if info.Size() > maxSecretFileSize {
		return "", secretError("secret file too large", map[string]any{"path": clean, "max_bytes": maxSecretFileSize})
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Global().Module("secrets").Warn("secret file is readable by group or others",
			logger.String("path", clean),
			logger.String("mode", perm.String()))
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return "", errors.New(err).
			Component("secrets").
			Category(errors.CategoryFileIO).
			Context("path", clean).
			Build()
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", secretError("secret file is empty", map[string]any{"path": clean})
	}
	return secret, nil
}

// Resolve returns the secret from filePath when set, otherwise value with
// environment references expanded.
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	return ExpandString(value)
}
