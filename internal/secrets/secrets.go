// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys and credentials from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Key names the harvesting and download stages look up.
const (
	KeyNCBIAPIKey    = "ncbi-api-key"
	KeyOpenAlexEmail = "openalex-email"
	KeyProxyURL      = "proxy-url"
)

// Secrets maps key names to their values.
type Secrets map[string]string

// Or returns explicit when it is non-empty, otherwise the stored value
// for key. Flags and config values take precedence over secret files.
func (s Secrets) Or(key, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return s[key]
}

// Keys returns the loaded key names, unordered.
func (s Secrets) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	return keys
}

// Load reads all files in dir and returns the secrets keyed by filename.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files produce a warning on stderr but do not abort.
func Load(dir string) (Secrets, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Secrets{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	loaded := make(Secrets)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read secret %s: %v\n", name, err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			loaded[name] = value
		}
	}

	return loaded, nil
}
