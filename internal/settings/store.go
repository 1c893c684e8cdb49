package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Store persists the flat settings document. Load returns an empty map
// when nothing has been saved yet.
type Store interface {
	Name() string
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, doc map[string]string) error
	Ping(ctx context.Context) error
}

// FileStore keeps the document as a JSON object on disk, or as YAML when
// the path ends in .yaml or .yml.
type FileStore struct {
	path string
}

func (f *FileStore) yaml() bool {
	switch strings.ToLower(filepath.Ext(f.path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Name() string { return "file" }

func (f *FileStore) Load(ctx context.Context) (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if f.yaml() {
		err = yaml.Unmarshal(data, &raw)
	} else {
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	doc := make(map[string]string, len(raw))
	for k, v := range raw {
		// null leaves the key to its default
		if v == nil {
			continue
		}
		doc[k] = fmt.Sprint(v)
	}
	return doc, nil
}

// Save writes a temp file and renames it over the old document.
func (f *FileStore) Save(ctx context.Context, doc map[string]string) error {
	var data []byte
	var err error
	if f.yaml() {
		data, err = yaml.Marshal(doc)
	} else {
		data, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".settings-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Ping checks the parent directory is usable.
func (f *FileStore) Ping(ctx context.Context) error {
	st, err := os.Stat(filepath.Dir(f.path))
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("%s is not a directory", filepath.Dir(f.path))
	}
	return nil
}

// DefaultRedisKey holds the settings hash.
const DefaultRedisKey = "reelrender:settings"

// RedisStore keeps the document in a single hash.
type RedisStore struct {
	rdb *redis.Client
	key string
}

func NewRedisStore(rdb *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{rdb: rdb, key: key}
}

func (r *RedisStore) Name() string { return "redis" }

func (r *RedisStore) Load(ctx context.Context) (map[string]string, error) {
	doc, err := r.rdb.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Save replaces the hash in one MULTI/EXEC so readers never see a mix.
func (r *RedisStore) Save(ctx context.Context, doc map[string]string) error {
	fields := make([]any, 0, len(doc)*2)
	for k, v := range doc {
		fields = append(fields, k, v)
	}
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		if len(fields) > 0 {
			pipe.HSet(ctx, r.key, fields...)
		}
		return nil
	})
	return err
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}
