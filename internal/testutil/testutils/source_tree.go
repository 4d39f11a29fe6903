package testutils

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteTree creates files (slash-separated relative path -> content) under root.
// A path ending in "/" creates an empty directory.
func WriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if rel != "" && rel[len(rel)-1] == '/' {
			if err := os.MkdirAll(full, 0o750); err != nil {
				t.Fatalf("failed to create %s: %v", rel, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
			t.Fatalf("failed to create directory for %s: %v", rel, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write %s: %v", rel, err)
		}
	}
}

// ReadFile returns the content of root/rel or fails the test.
func ReadFile(t *testing.T, root, rel string) string {
	t.Helper()

	// #nosec G304 - test helper, paths are controlled by test code
	b, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("failed to read %s: %v", rel, err)
	}
	return string(b)
}
