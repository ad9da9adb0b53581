package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore writes blobs under a base directory, the direct analogue of
// the teacher's localUploader for development and tests without S3.
type LocalStore struct {
	baseDir string
}

// NewLocalStore builds a LocalStore rooted at baseDir, creating it if
// necessary.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

func (l *LocalStore) Put(_ context.Context, key string, body []byte) (string, error) {
	path := filepath.Join(l.baseDir, sanitize(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create artifact subdir: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return "local://" + sanitize(key), nil
}

func (l *LocalStore) Get(_ context.Context, ref string) ([]byte, error) {
	key := trimScheme(ref, "local://")
	path := filepath.Join(l.baseDir, sanitize(key))
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return body, nil
}

// sanitize confines key to the store's base directory: it drops any ".."
// or "." path segment rather than merely cleaning the path, so a caller
// cannot escape baseDir by supplying a crafted job or artifact id.
func sanitize(key string) string {
	key = filepath.ToSlash(key)
	parts := strings.Split(key, "/")
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, "/")
}

func trimScheme(ref, scheme string) string {
	if len(ref) >= len(scheme) && ref[:len(scheme)] == scheme {
		return ref[len(scheme):]
	}
	return ref
}
