package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/san-kum/physlink/internal/dynamo"
)

const (
	metadataFile = "metadata.json"
	snapshotFile = "state.snap"
)

// Store keeps named snapshots, one directory each.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type SnapshotMetadata struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Timestamp     time.Time `json:"timestamp"`
	EngineVersion string    `json:"engine_version"`
	SimTime       float64   `json:"sim_time"`
	Bodies        []string  `json:"bodies"`
	Size          int       `json:"size"`
}

// checkName rejects names that would leave the store directory.
func checkName(kind, name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: snapshot %s %q", dynamo.ErrInvalidArgument, kind, name)
	}
	return nil
}

// Save writes blob under a fresh id derived from name.
func (s *Store) Save(name, engineVersion string, simTime float64, bodies []string, blob []byte) (string, error) {
	if err := checkName("name", name); err != nil {
		return "", err
	}
	now := time.Now()
	id := fmt.Sprintf("%s_%d", name, now.UnixNano())
	dir := filepath.Join(s.baseDir, id)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	if err := WriteSnapshotFile(filepath.Join(dir, snapshotFile), engineVersion, blob); err != nil {
		return "", err
	}

	meta := SnapshotMetadata{
		ID:            id,
		Name:          name,
		Timestamp:     now,
		EngineVersion: engineVersion,
		SimTime:       simTime,
		Bodies:        bodies,
		Size:          len(blob),
	}

	metaFile, err := os.Create(filepath.Join(dir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}
	return id, nil
}

// List returns every readable entry, oldest first.
func (s *Store) List() ([]SnapshotMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SnapshotMetadata{}, nil
		}
		return nil, err
	}

	snaps := make([]SnapshotMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		snaps = append(snaps, *meta)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Timestamp.Before(snaps[j].Timestamp) })
	return snaps, nil
}

func (s *Store) Load(id string) (*SnapshotMetadata, error) {
	if err := checkName("id", id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.baseDir, id, metadataFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: snapshot %q", dynamo.ErrUnknownHandle, id)
		}
		return nil, err
	}

	var meta SnapshotMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: metadata for %q: %v", dynamo.ErrCorruptSnapshot, id, err)
	}
	return &meta, nil
}

// LoadBlob reads and validates the blob of entry id.
func (s *Store) LoadBlob(id, wantVersion string) ([]byte, error) {
	if err := checkName("id", id); err != nil {
		return nil, err
	}
	blob, _, err := ReadSnapshotFile(s.Path(id), wantVersion)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: snapshot %q", dynamo.ErrUnknownHandle, id)
	}
	return blob, err
}

// Path is the snapshot file of entry id.
func (s *Store) Path(id string) string {
	return filepath.Join(s.baseDir, id, snapshotFile)
}

func (s *Store) Remove(id string) error {
	if err := checkName("id", id); err != nil {
		return err
	}
	dir := filepath.Join(s.baseDir, id)
	if _, err := os.Stat(filepath.Join(dir, metadataFile)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: snapshot %q", dynamo.ErrUnknownHandle, id)
		}
		return err
	}
	return os.RemoveAll(dir)
}
