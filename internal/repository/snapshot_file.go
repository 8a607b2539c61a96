package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"cardbored-api/internal/decklist"
	"cardbored-api/internal/model"
)

// MetadataKey is the reserved top-level key of the lookup file.
const MetadataKey = "_metadata"

// FileFormatVersion is written to the lookup file's metadata.
const FileFormatVersion = "1.0"

// FileMetadata describes a generated lookup file. LastUpdated is the
// provider's dataset timestamp; FetchedAt is when the file was built.
type FileMetadata struct {
	LastUpdated string `json:"lastUpdated"`
	TotalCards  int    `json:"totalCards"`
	FetchedAt   string `json:"fetchedAt"`
	Version     string `json:"version"`
}

// FileSnapshotStore keeps the snapshot in a static JSON lookup file keyed by
// card name, with a "_metadata" entry.
type FileSnapshotStore struct {
	path string
}

// NewFileSnapshotStore uses the file at path. The file need not exist yet.
func NewFileSnapshotStore(path string) *FileSnapshotStore {
	return &FileSnapshotStore{path: path}
}

// Path returns the file location.
func (s *FileSnapshotStore) Path() string {
	return s.path
}

// Save writes the file through a temporary file and a rename.
func (s *FileSnapshotStore) Save(ctx context.Context, snap *model.Snapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}

	doc := make(map[string]any, len(snap.Records)+1)
	for key, rec := range snap.Records {
		doc[key] = rec
	}
	doc[MetadataKey] = FileMetadata{
		LastUpdated: snap.SourceUpdatedAt,
		TotalCards:  len(snap.Records),
		FetchedAt:   time.UnixMilli(snap.FetchedAtMillis()).UTC().Format(time.RFC3339Nano),
		Version:     FileFormatVersion,
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode lookup file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write lookup file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write lookup file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace lookup file: %w", err)
	}

	log.Printf("[SnapshotStore] Wrote %d records to %s (%.2f MB)", len(snap.Records), s.path, float64(len(data))/1024/1024)
	return nil
}

// Load reads the file; a missing file yields nil, nil. The snapshot time is
// fetchedAt, then lastUpdated, then the file's modification time. Entries are re-keyed
// by the normalized card name so hand-edited files still satisfy the index.
func (s *FileSnapshotStore) Load(ctx context.Context) (*model.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lookup file: %w", err)
	}

	meta, records, err := decodeLookupFile(data)
	if err != nil {
		return nil, err
	}

	snap := &model.Snapshot{Records: records, SourceUpdatedAt: meta.LastUpdated}
	for _, ts := range []string{meta.FetchedAt, meta.LastUpdated} {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			snap.FetchedAt = t
			break
		}
	}
	if snap.FetchedAt.IsZero() {
		if info, err := os.Stat(s.path); err == nil {
			snap.FetchedAt = info.ModTime()
		}
	}
	return snap, nil
}

// ReadMetadata returns only the metadata entry of the file.
func (s *FileSnapshotStore) ReadMetadata() (*FileMetadata, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Meta *FileMetadata `json:"_metadata"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode lookup file: %w", err)
	}
	if doc.Meta == nil {
		return nil, fmt.Errorf("lookup file %s has no %s entry", s.path, MetadataKey)
	}
	return doc.Meta, nil
}

// Close is a no-op.
func (s *FileSnapshotStore) Close() error {
	return nil
}

func decodeLookupFile(data []byte) (FileMetadata, map[string]model.PriceRecord, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return FileMetadata{}, nil, fmt.Errorf("failed to decode lookup file: %w", err)
	}

	var meta FileMetadata
	if m, ok := raw[MetadataKey]; ok {
		if err := json.Unmarshal(m, &meta); err != nil {
			return FileMetadata{}, nil, fmt.Errorf("invalid %s: %w", MetadataKey, err)
		}
		delete(raw, MetadataKey)
	}

	records := make(map[string]model.PriceRecord, len(raw))
	for key, entry := range raw {
		var rec model.PriceRecord
		if err := json.Unmarshal(entry, &rec); err != nil {
			return FileMetadata{}, nil, fmt.Errorf("invalid entry %q: %w", key, err)
		}
		if rec.Name == "" {
			rec.Name = key
		}
		records[decklist.Normalize(rec.Name)] = rec
	}
	return meta, records, nil
}
