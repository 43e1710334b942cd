// Package file implements the fallback storage backend on a local JSON file
// tree. It simulates what the document backend gets natively (unique keys,
// secondary indices, atomic updates) with directory layout and whole-file
// rewrites:
//
//	users/users.json                                array of User
//	api_keys/api_keys.json                          array of APIKey
//	api_users/<sanitized key>/<sanitized id>.json   one APIUser
//	api_users/<sanitized key>/_summary.json         per-key running totals
//	conversations/_index.json                       conversation ID -> owner
//	conversations/<owner>/metadata/<id>.json        one Conversation
//	conversations/<owner>/<id>.json                 array of Message
//
// Every mutation is a read-modify-write of a whole file, serialized by a
// process-wide mutex so concurrent request handlers cannot lose updates. The
// backend is intended for development and single-process deployments; it does
// not coordinate between processes sharing one data directory.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/code-supporter/code-supporter/internal/config"
	"github.com/code-supporter/code-supporter/internal/store"
)

func init() {
	store.Register(store.KindFile, func(ctx context.Context, cfg *config.StorageConfig) (store.Backend, error) {
		return New(cfg.DataDir)
	})
}

// Backend implements store.Backend on a local file tree.
type Backend struct {
	dataDir string

	// mu serializes every read-modify-write cycle. Coarse, but the fallback
	// backend trades throughput for not silently dropping concurrent writes.
	mu sync.Mutex
}

// New creates the file backend rooted at dataDir, creating the directory
// layout if absent. Existing data is never touched.
func New(dataDir string) (*Backend, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("file storage: data directory is required")
	}
	for _, sub := range []string{"", "users", "api_keys", "api_users", "conversations"} {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0750); err != nil {
			return nil, fmt.Errorf("file storage: failed to create %s directory: %w", sub, err)
		}
	}
	return &Backend{dataDir: dataDir}, nil
}

// Kind identifies this backend.
func (b *Backend) Kind() string { return store.KindFile }

// Close is a no-op; the backend holds no open handles between operations.
func (b *Backend) Close(ctx context.Context) error { return nil }

// sanitizeRe matches every character that may not appear in a filename derived
// from an externally supplied identifier (API key, external user ID, username).
var sanitizeRe = regexp.MustCompile(`[^\w-]`)

// sanitize maps an identifier onto a safe filename component, replacing
// non-word characters so user input cannot traverse outside the data tree.
func sanitize(id string) string {
	s := sanitizeRe.ReplaceAllString(id, "_")
	if s == "" {
		return "_"
	}
	return s
}

// readJSON loads path into v. Returns (false, nil) when the file does not
// exist, which callers treat as a normal empty state.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path components are sanitized above
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

// writeJSON replaces path atomically: the payload is written to a temp file in
// the same directory, then renamed over the target, so a crash mid-write never
// leaves a half-serialized file behind.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// fail logs a storage I/O failure with context and returns it wrapped. Every
// public operation funnels unexpected errors through here so diagnostics end
// up in the log even when callers collapse the error into a generic failure.
func (b *Backend) fail(op string, err error) error {
	slog.Error("file storage operation failed", "op", op, "error", err)
	return fmt.Errorf("file storage %s: %w", op, err)
}

// now returns the canonical timestamp for file-backend writes.
func now() time.Time { return time.Now().UTC() }
