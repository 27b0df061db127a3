// Package snapshot persists completed run results as timestamped JSON files
// and locates the most recent prior run. The filename timestamp is
// fixed-width, so lexicographic and chronological order coincide.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tmaeda/urwatch/models"
)

// ErrNoSnapshot is returned by Latest when no prior run exists.
var ErrNoSnapshot = errors.New("snapshot: no prior snapshot")

// ErrSnapshotExists is returned by Save when the computed filename is
// already taken. Timestamps carry second resolution; concurrent runs are
// out of scope.
var ErrSnapshotExists = errors.New("snapshot: file already exists")

const (
	filePrefix    = "ur_net_results_"
	fileSuffix    = ".json"
	stampLayout   = "20060102_150405"
	minimumStamp  = "00000000_000000"
	parseCacheCap = 8
)

var stampPattern = regexp.MustCompile(`^\d{8}_\d{6}$`)

// Store reads and writes run snapshots under one directory.
type Store struct {
	dir string

	// parsed caches decoded snapshots by path; decide and reporting both
	// re-read the prior run within a single invocation.
	parsed *lru.Cache[string, *models.RunSnapshot]
}

// NewStore builds a store rooted at dir. The directory is created lazily on
// first save.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("snapshot directory cannot be empty")
	}
	cache, err := lru.New[string, *models.RunSnapshot](parseCacheCap)
	if err != nil {
		return nil, fmt.Errorf("snapshot cache: %w", err)
	}
	return &Store{dir: dir, parsed: cache}, nil
}

// Filename returns the deterministic snapshot name for a run timestamp.
func Filename(ts time.Time) string {
	return filePrefix + ts.Format(stampLayout) + fileSuffix
}

// Save writes snap to its timestamp-derived filename and returns the path.
// It creates the directory if absent and refuses to overwrite an existing
// snapshot.
func (s *Store) Save(snap *models.RunSnapshot) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot directory %q: %w", s.dir, err)
	}

	path := filepath.Join(s.dir, Filename(snap.Timestamp))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("%w: %s", ErrSnapshotExists, path)
		}
		return "", fmt.Errorf("create snapshot file: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(snap); err != nil {
		f.Close()
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close snapshot file: %w", err)
	}

	s.parsed.Add(path, snap)
	return path, nil
}

// Latest returns the path of the chronologically greatest snapshot, or
// ErrNoSnapshot when the directory is absent or holds no matching files.
// Filenames that do not match the expected pattern sort as the minimum
// possible timestamp.
func (s *Store) Latest() (string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoSnapshot
		}
		return "", fmt.Errorf("scan snapshot directory: %w", err)
	}

	best := ""
	bestStamp := ""
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}

		// A mangled timestamp sorts as the minimum: never preferred over a
		// well-formed snapshot, still found when it is the only one.
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
		if !stampPattern.MatchString(stamp) {
			stamp = minimumStamp
		}
		if best == "" || stamp > bestStamp {
			best = name
			bestStamp = stamp
		}
	}

	if best == "" {
		return "", ErrNoSnapshot
	}
	return filepath.Join(s.dir, best), nil
}

// Load reads and decodes the snapshot at path.
func (s *Store) Load(path string) (*models.RunSnapshot, error) {
	if snap, ok := s.parsed.Get(path); ok {
		return snap, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}

	var snap models.RunSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}

	s.parsed.Add(path, &snap)
	return &snap, nil
}
