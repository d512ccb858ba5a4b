// Package cache memoizes pipeline stage outputs on disk, one file per
// subject per stage:
//
//	<root>/points/<key>.json
//	<root>/route/<key>.json
//	<root>/artifact/<key>.png
//	<root>/summary/<key>.json
//
// plus cross-subject documents in the summary directory. Reads that fail for
// any reason surface as a *Miss so callers recompute instead of failing.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/banshee-data/roadtrip/internal/fsutil"
	"github.com/banshee-data/roadtrip/internal/security"
	"github.com/banshee-data/roadtrip/internal/subject"
)

// DefaultDir is the cache root used when none is configured.
const DefaultDir = ".roadtrip_cache"

// Shared document names. They contain a '.', which a subject key never does.
const (
	SummariesDoc    = "all.summaries.json"
	LeaderboardsDoc = "all.leaderboards.json"
)

// ErrInvalidKey is returned for keys that are not slugs.
var ErrInvalidKey = errors.New("invalid subject key")

// Miss reports that a cache entry is absent or unreadable. It is never a
// failure: callers recompute the stage.
type Miss struct {
	Key    string
	Stage  Stage
	Reason string
	Err    error
}

func (m *Miss) Error() string {
	if m.Err != nil {
		return fmt.Sprintf("cache miss %s/%s: %s: %v", m.Stage, m.Key, m.Reason, m.Err)
	}
	return fmt.Sprintf("cache miss %s/%s: %s", m.Stage, m.Key, m.Reason)
}

func (m *Miss) Unwrap() error { return m.Err }

// IsMiss reports whether err is a cache miss.
func IsMiss(err error) bool {
	var miss *Miss
	return errors.As(err, &miss)
}

// Store is a file-backed stage cache rooted at one directory. Entries for
// distinct subjects never share a file, so concurrent runs for different
// subjects need no coordination.
type Store struct {
	root string
	fs   fsutil.FileSystem
}

// New returns a store rooted at root. A nil fs uses the OS filesystem.
func New(root string, fsys fsutil.FileSystem) *Store {
	if root == "" {
		root = DefaultDir
	}
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &Store{root: root, fs: fsys}
}

// Root returns the cache root directory.
func (s *Store) Root() string {
	return s.root
}

// Path returns the file holding key's entry for stage.
func (s *Store) Path(key string, stage Stage) (string, error) {
	if !stage.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStage, string(stage))
	}
	if !subject.ValidKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return security.JoinWithin(s.root, string(stage), key+stage.Ext())
}

// Get returns the payload stored for key at stage. Absent or unreadable
// entries return a *Miss; other errors are caller bugs.
func (s *Store) Get(key string, stage Stage) ([]byte, error) {
	path, err := s.Path(key, stage)
	if err != nil {
		return nil, err
	}
	return s.read(path, key, stage)
}

// GetJSON decodes key's entry for stage into v. A payload that does not
// decode is reported as a *Miss.
func (s *Store) GetJSON(key string, stage Stage, v any) error {
	data, err := s.Get(key, stage)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &Miss{Key: key, Stage: stage, Reason: "malformed payload", Err: err}
	}
	return nil
}

// Exists reports whether key has an entry for stage.
func (s *Store) Exists(key string, stage Stage) bool {
	path, err := s.Path(key, stage)
	if err != nil {
		return false
	}
	return s.fs.Exists(path)
}

// Put stores payload for key at stage. The payload is written to a
// temporary file and renamed into place, so readers observe either the
// previous entry or the complete new one.
func (s *Store) Put(key string, stage Stage, payload []byte) error {
	path, err := s.Path(key, stage)
	if err != nil {
		return err
	}
	return s.publish(path, payload)
}

// PutJSON encodes v and stores it for key at stage.
func (s *Store) PutJSON(key string, stage Stage, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", stage, key, err)
	}
	return s.Put(key, stage, data)
}

// Invalidate removes key's entry for from and for every later stage.
// Entries that do not exist are ignored.
func (s *Store) Invalidate(key string, from Stage) error {
	if !from.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStage, string(from))
	}
	for _, stage := range from.AndDownstream() {
		path, err := s.Path(key, stage)
		if err != nil {
			return err
		}
		if err := s.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("invalidate %s/%s: %w", stage, key, err)
		}
	}
	return nil
}

// PutShared stores a cross-subject document in the summary directory.
func (s *Store) PutShared(name string, v any) error {
	path, err := s.sharedPath(name)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return s.publish(path, data)
}

// GetShared decodes a cross-subject document into v.
func (s *Store) GetShared(name string, v any) error {
	path, err := s.sharedPath(name)
	if err != nil {
		return err
	}
	data, err := s.read(path, name, StageSummary)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &Miss{Key: name, Stage: StageSummary, Reason: "malformed payload", Err: err}
	}
	return nil
}

func (s *Store) sharedPath(name string) (string, error) {
	if name != SummariesDoc && name != LeaderboardsDoc {
		return "", fmt.Errorf("unknown shared document %q", name)
	}
	return security.JoinWithin(s.root, string(StageSummary), name)
}

func (s *Store) read(path, key string, stage Stage) ([]byte, error) {
	data, err := s.fs.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &Miss{Key: key, Stage: stage, Reason: "absent"}
	}
	if err != nil {
		return nil, &Miss{Key: key, Stage: stage, Reason: "unreadable", Err: err}
	}
	if len(data) == 0 {
		return nil, &Miss{Key: key, Stage: stage, Reason: "empty payload"}
	}
	return data, nil
}

func (s *Store) publish(path string, payload []byte) error {
	dir := filepath.Dir(path)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp := path + ".tmp-" + uuid.NewString()
	if err := s.fs.WriteFile(tmp, payload, 0644); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("publish %s: %w", path, err)
	}
	return nil
}
