// Package store implements the orchestrator's JSON file-based persistence
// layer: atomic writes, auto-directory creation, and a versioned metadata
// envelope wrapping every key's payload.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/itom-platform/orchestrator/internal/errcode"
)

// StateVersion is bumped whenever the envelope schema changes.
const StateVersion = 1

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Error wraps a store failure with a stable error code.
type Error struct {
	Code    string
	Key     string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store: %s (key=%s): %v", e.Message, e.Key, e.Err)
	}
	return fmt.Sprintf("store: %s (key=%s)", e.Message, e.Key)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCode implements errcode.Coded.
func (e *Error) ErrorCode() string { return e.Code }

// Envelope is the on-disk wrapper persisted for every key.
type Envelope struct {
	Version  int             `json:"_version"`
	SavedAt  string          `json:"_saved_at"`
	Key      string          `json:"_key"`
	Data     json.RawMessage `json:"data"`
}

// Metadata is the envelope without its data payload.
type Metadata struct {
	Version int    `json:"version"`
	SavedAt string `json:"saved_at"`
	Key     string `json:"key"`
}

// Store is a JSON file-based key/value persistence layer rooted at a
// single state directory. One Store instance is safe for concurrent use;
// each operation is a self-contained syscall sequence with no in-process
// locking required beyond what the filesystem already serializes.
type Store struct {
	dir string
	log *logrus.Entry
}

// New creates a Store rooted at dir, creating the directory (and parents)
// if it does not already exist.
func New(dir string, log *logrus.Entry) (*Store, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &Error{Code: errcode.StateWriteFailed, Message: "create state directory", Err: err}
	}
	log.WithField("state_dir", dir).Info("store initialized")
	return &Store{dir: dir, log: log}, nil
}

func validateKey(key string) error {
	if key == "" {
		return &Error{Code: errcode.StateWriteFailed, Message: "state key must not be empty"}
	}
	if !keyPattern.MatchString(key) {
		return &Error{Code: errcode.StateWriteFailed, Key: key, Message: "invalid state key: must match " + keyPattern.String()}
	}
	return nil
}

func (s *Store) filePath(key string) string { return filepath.Join(s.dir, key+".json") }
func (s *Store) tmpPath(key string) string  { return filepath.Join(s.dir, key+".json.tmp") }

// Save persists data under key, wrapped in the versioned envelope, via a
// temp-file-then-rename atomic write.
func (s *Store) Save(key string, data any) error {
	if err := validateKey(key); err != nil {
		return err
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return &Error{Code: errcode.StateWriteFailed, Key: key, Message: "marshal payload", Err: err}
	}

	envelope := Envelope{
		Version: StateVersion,
		SavedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Key:     key,
		Data:    payload,
	}

	out, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return &Error{Code: errcode.StateWriteFailed, Key: key, Message: "marshal envelope", Err: err}
	}
	out = append(out, '\n')

	target := s.filePath(key)
	tmp := s.tmpPath(key)

	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		_ = os.Remove(tmp)
		s.log.WithError(err).WithField("key", key).Error("failed to save state")
		return &Error{Code: errcode.StateWriteFailed, Key: key, Message: "write temp file", Err: err}
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		s.log.WithError(err).WithField("key", key).Error("failed to save state")
		return &Error{Code: errcode.StateWriteFailed, Key: key, Message: "rename temp file", Err: err}
	}

	s.log.WithField("key", key).WithField("version", StateVersion).Info("state saved")
	return nil
}

// Load returns the raw data payload for key, or nil if the key does not
// exist. Corrupted or unreadable files degrade to (nil, nil) rather than
// propagating an error, matching the store's "absent on failure" contract.
func (s *Store) Load(key string) (json.RawMessage, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	target := s.filePath(key)
	raw, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		s.log.WithError(err).WithField("key", key).Error("failed to load state")
		return nil, nil
	}

	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		s.log.WithError(err).WithField("key", key).Error("state file corrupted or unreadable")
		return nil, nil
	}

	if envelope.Version != StateVersion {
		s.log.WithField("key", key).WithField("file_version", envelope.Version).
			WithField("expected_version", StateVersion).Warn("state version mismatch")
	}

	return envelope.Data, nil
}

// LoadInto loads the data payload for key and unmarshals it into v. Returns
// (false, nil) if the key does not exist or the file is unreadable.
func LoadInto[T any](s *Store, key string, v *T) (bool, error) {
	raw, err := s.Load(key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, &Error{Code: errcode.StateCorrupted, Key: key, Message: "unmarshal payload", Err: err}
	}
	return true, nil
}

// Delete removes the state file for key. Returns false if it did not exist.
func (s *Store) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	target := s.filePath(key)
	if _, err := os.Stat(target); os.IsNotExist(err) {
		return false, nil
	}
	if err := os.Remove(target); err != nil {
		return false, &Error{Code: errcode.StateWriteFailed, Key: key, Message: "delete state file", Err: err}
	}
	s.log.WithField("key", key).Info("state deleted")
	return true, nil
}

// Exists reports whether a state file exists for key.
func (s *Store) Exists(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	_, err := os.Stat(s.filePath(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &Error{Code: errcode.StateReadFailed, Key: key, Message: "stat state file", Err: err}
}

// ListKeys returns every state key currently persisted, sorted.
func (s *Store) ListKeys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &Error{Code: errcode.StateReadFailed, Message: "read state directory", Err: err}
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".json.tmp") {
			continue
		}
		if strings.HasSuffix(name, ".json") {
			keys = append(keys, strings.TrimSuffix(name, ".json"))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// GetMetadata returns the envelope metadata for key without its data
// payload, or nil if the key does not exist.
func (s *Store) GetMetadata(key string) (*Metadata, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.filePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, nil
	}
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, nil
	}
	return &Metadata{Version: envelope.Version, SavedAt: envelope.SavedAt, Key: envelope.Key}, nil
}

// Dir returns the root state directory.
func (s *Store) Dir() string { return s.dir }
