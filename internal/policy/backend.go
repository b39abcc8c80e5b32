package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"hostwatch/internal/state"
)

// ErrNoStoredPolicy is returned by a Backend that holds no policy set yet.
var ErrNoStoredPolicy = errors.New("no stored policy")

// Backend persists the policy set. Load decodes the stored document over base,
// so keys missing from storage keep their base value.
type Backend interface {
	Load(ctx context.Context, base Set) (Set, error)
	Save(ctx context.Context, set Set) error
}

// FileBackend stores the set as a YAML file.
type FileBackend struct {
	Path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{Path: path}
}

func (f *FileBackend) Load(_ context.Context, base Set) (Set, error) {
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return base, ErrNoStoredPolicy
	}
	if err != nil {
		return base, fmt.Errorf("read policy file: %w", err)
	}
	out := base.Clone()
	if err := yaml.Unmarshal(b, &out); err != nil {
		return base, fmt.Errorf("decode policy file %s: %w", f.Path, err)
	}
	return out, nil
}

// Save writes to a temp file in the same directory and renames it into place.
func (f *FileBackend) Save(_ context.Context, set Set) error {
	b, err := yaml.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}

	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create policy dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".policy-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp policy file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write policy file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close policy file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("replace policy file: %w", err)
	}
	return nil
}

// RedisBackend stores the set as a JSON value under Key.
type RedisBackend struct {
	KV  state.KV
	Key string
}

func NewRedisBackend(kv state.KV, key string) *RedisBackend {
	return &RedisBackend{KV: kv, Key: key}
}

func (r *RedisBackend) Load(ctx context.Context, base Set) (Set, error) {
	b, err := r.KV.Get(ctx, r.Key)
	if errors.Is(err, state.ErrNotFound) {
		return base, ErrNoStoredPolicy
	}
	if err != nil {
		return base, err
	}
	out := base.Clone()
	if err := json.Unmarshal(b, &out); err != nil {
		return base, fmt.Errorf("decode policy %s: %w", r.Key, err)
	}
	return out, nil
}

func (r *RedisBackend) Save(ctx context.Context, set Set) error {
	b, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}
	return r.KV.Set(ctx, r.Key, b)
}
