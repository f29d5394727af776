package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const snapshotVersion = 1

// IOError is a failed read or write of the cache artifact.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// CacheStatus is the result of Load: either Fresh with a dataset or Absent
// with a human-readable reason.
type CacheStatus struct {
	dataset *Dataset
	Reason  string
}

func Fresh(ds Dataset) CacheStatus { return CacheStatus{dataset: &ds} }

func Absent(reason string) CacheStatus { return CacheStatus{Reason: reason} }

// Dataset returns the cached dataset and true when the status is Fresh.
func (s CacheStatus) Dataset() (Dataset, bool) {
	if s.dataset == nil {
		return Dataset{}, false
	}
	return *s.dataset, true
}

func (s CacheStatus) Fresh() bool { return s.dataset != nil }

// Info describes the artifact on disk.
type Info struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Store persists a dataset snapshot as a single JSON file.
type Store struct {
	path  string
	names FieldNames
}

func New(path string, names FieldNames) *Store {
	return &Store{path: path, names: names}
}

func (s *Store) Path() string { return s.path }

type snapshot struct {
	Version    int              `json:"version,omitempty"`
	Source     string           `json:"source,omitempty"`
	FetchedAt  *time.Time       `json:"fetched_at,omitempty"`
	Complete   *bool            `json:"complete,omitempty"`
	FieldNames *snapshotFields  `json:"field_names,omitempty"`
	Results    []snapshotResult `json:"results"`
}

// snapshotFields records the mapping the results were written with.
type snapshotFields struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Subject     string `json:"subject"`
}

type snapshotResult struct {
	Fields map[string]string `json:"fields"`
}

type rawSnapshot struct {
	Source     string                       `json:"source"`
	FetchedAt  *time.Time                   `json:"fetched_at"`
	Complete   *bool                        `json:"complete"`
	FieldNames *snapshotFields              `json:"field_names"`
	Results    []map[string]json.RawMessage `json:"results"`
}

// Load returns Fresh when the artifact exists and parses. Missing,
// unreadable and malformed files are all Absent.
func (s *Store) Load() CacheStatus {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Absent("no cache file")
		}
		return Absent((&IOError{Op: "read", Path: s.path, Err: err}).Error())
	}

	var raw rawSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return Absent(fmt.Sprintf("malformed cache file: %v", err))
	}
	if raw.Results == nil {
		return Absent("cache file has no results")
	}
	// files without a mapping predate it and are read with the current one
	if raw.FieldNames != nil && FieldNames(*raw.FieldNames) != s.names {
		return Absent("field mapping changed")
	}

	ds := Dataset{
		Records:  make([]Record, 0, len(raw.Results)),
		Complete: true,
		Source:   raw.Source,
	}
	// files written before completeness was tracked only existed after a
	// successful fetch
	if raw.Complete != nil {
		ds.Complete = *raw.Complete
	}
	if raw.FetchedAt != nil {
		ds.FetchedAt = *raw.FetchedAt
	}
	for _, r := range raw.Results {
		ds.Records = append(ds.Records, s.names.DecodeRecord(r))
	}
	return Fresh(ds)
}

// Save writes ds to a temp file next to the target and renames it into
// place, so readers never see a partial file.
func (s *Store) Save(ds Dataset) error {
	snap := snapshot{
		Version:  snapshotVersion,
		Source:   ds.Source,
		Complete: &ds.Complete,
		Results:  make([]snapshotResult, 0, len(ds.Records)),
	}
	fields := snapshotFields(s.names)
	snap.FieldNames = &fields
	if !ds.FetchedAt.IsZero() {
		t := ds.FetchedAt.UTC()
		snap.FetchedAt = &t
	}
	for _, r := range ds.Records {
		snap.Results = append(snap.Results, snapshotResult{Fields: s.names.EncodeRecord(r)})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(snap); err != nil {
		return &IOError{Op: "encode", Path: s.path, Err: err}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+"-*")
	if err != nil {
		return &IOError{Op: "create", Path: s.path, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		cleanup()
		return &IOError{Op: "write", Path: tmpName, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return &IOError{Op: "sync", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return &IOError{Op: "close", Path: tmpName, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return &IOError{Op: "rename", Path: s.path, Err: err}
	}
	return nil
}

// Remove deletes the artifact. A missing file is not an error.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &IOError{Op: "remove", Path: s.path, Err: err}
	}
	return nil
}

func (s *Store) Stat() (Info, error) {
	fi, err := os.Stat(s.path)
	if err != nil {
		return Info{}, &IOError{Op: "stat", Path: s.path, Err: err}
	}
	return Info{Path: s.path, Size: fi.Size(), ModTime: fi.ModTime()}, nil
}
