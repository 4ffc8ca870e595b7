// Package snapshot stores entity records as immutable, numbered JSON versions.
//
// Each entity owns the files {prefix}{id}{sep}{ordinal}.json in the store
// directory. Ordinals start at 0 and are contiguous; the highest one is the
// latest version. A record is written as a new version only when it differs
// from the latest one, otherwise only the latest scraped_at is refreshed.
//
// A Store assumes it is the only writer of its directory. Concurrent
// processes must be serialised by the caller (see the scraping service lock).
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ps-vitor/lettings-watch/backend/internal/domain"
)

const fileExt = ".json"

// Config configures a Store.
type Config struct {
	// Dir is the namespace directory. Created if missing.
	Dir string
	// Prefix is prepended to every file name, e.g. "rightmove_".
	Prefix string
	// Separator sits between the entity id and the ordinal. Default: "-".
	Separator string
	// Ignored lists the top-level fields excluded from change detection.
	// Default: domain.MetadataFields().
	Ignored []string
	// Now stamps scraped_at. Default: time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Separator == "" {
		c.Separator = "-"
	}
	if c.Ignored == nil {
		c.Ignored = domain.MetadataFields()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Result is the outcome of Save.
type Result struct {
	Ordinal int
	Created bool
}

// Version is one stored record of an entity.
type Version struct {
	Ordinal int           `json:"ordinal"`
	Record  domain.Record `json:"record"`
}

// Store persists versions for one entity namespace.
type Store struct {
	cfg Config
}

// New creates a Store rooted at cfg.Dir.
func New(cfg Config) (*Store, error) {
	cfg.defaults()
	if cfg.Dir == "" {
		return nil, fmt.Errorf("snapshot: empty directory")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: mkdir: %w", err)
	}
	return &Store{cfg: cfg}, nil
}

// Dir returns the namespace directory.
func (s *Store) Dir() string { return s.cfg.Dir }

// Save stores rec for entityID. It creates version 0 for a new entity and
// version latest+1 when rec differs from the latest version. An unchanged
// record only refreshes scraped_at of the latest version.
func (s *Store) Save(entityID string, rec domain.Record) (Result, error) {
	id := normalizeID(entityID)
	log := s.cfg.Logger.With("entity", id)

	ordinals, err := s.Versions(id)
	if err != nil {
		return Result{}, &domain.StorageError{Op: "list", Path: s.cfg.Dir, Entity: id, Err: err}
	}

	stamp := s.cfg.Now().UTC().Format(time.RFC3339)
	next := rec.Clone()
	next[domain.FieldScrapedAt] = stamp

	if len(ordinals) == 0 {
		if err := s.create(id, 0, next); err != nil {
			return Result{}, err
		}
		log.Info("snapshot: saved new entity", "file", s.fileName(id, 0))
		return Result{Ordinal: 0, Created: true}, nil
	}

	latest := ordinals[len(ordinals)-1]
	old, err := s.read(id, latest, true)
	changed := true
	if err != nil {
		var corrupt *domain.CorruptVersionError
		if !errors.As(err, &corrupt) {
			return Result{}, &domain.StorageError{Op: "read", Path: s.path(id, latest), Entity: id, Err: err}
		}
		log.Warn("snapshot: latest version unreadable, storing new version", "error", err)
	} else {
		changed = Differs(next, old, s.cfg.Ignored)
	}

	if changed {
		ordinal := latest + 1
		if err := s.create(id, ordinal, next); err != nil {
			return Result{}, err
		}
		log.Info("snapshot: data changed, saved new version", "file", s.fileName(id, ordinal))
		return Result{Ordinal: ordinal, Created: true}, nil
	}

	old[domain.FieldScrapedAt] = stamp
	if err := s.replace(id, latest, old); err != nil {
		return Result{}, err
	}
	log.Debug("snapshot: no changes, refreshed scraped_at", "file", s.fileName(id, latest))
	return Result{Ordinal: latest, Created: false}, nil
}

// Versions returns the stored ordinals of entityID in ascending order.
func (s *Store) Versions(entityID string) ([]int, error) {
	id := normalizeID(entityID)
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return nil, err
	}
	var ordinals []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		base, ordinal, ok := s.parseName(e.Name())
		if ok && base == id {
			ordinals = append(ordinals, ordinal)
		}
	}
	sort.Ints(ordinals)
	return ordinals, nil
}

// Load reads one version. A file that is not valid JSON yields a
// *domain.CorruptVersionError.
func (s *Store) Load(entityID string, ordinal int) (domain.Record, error) {
	return s.read(normalizeID(entityID), ordinal, false)
}

// read decodes one version file. exact keeps numbers as json.Number so
// change detection and in-place refreshes see the stored digits.
func (s *Store) read(id string, ordinal int, exact bool) (domain.Record, error) {
	path := s.path(id, ordinal)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec domain.Record
	dec := json.NewDecoder(bytes.NewReader(data))
	if exact {
		dec.UseNumber()
	}
	if err := dec.Decode(&rec); err != nil {
		return nil, &domain.CorruptVersionError{Path: path, Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &domain.CorruptVersionError{Path: path, Err: errors.New("trailing data after JSON object")}
	}
	if rec == nil {
		return nil, &domain.CorruptVersionError{Path: path, Err: errors.New("not a JSON object")}
	}
	return rec, nil
}

// Latest returns the highest version of entityID. os.ErrNotExist is
// returned for an entity without versions.
func (s *Store) Latest(entityID string) (Version, error) {
	ordinals, err := s.Versions(entityID)
	if err != nil {
		return Version{}, err
	}
	if len(ordinals) == 0 {
		return Version{}, fmt.Errorf("snapshot: entity %q: %w", entityID, os.ErrNotExist)
	}
	last := ordinals[len(ordinals)-1]
	rec, err := s.Load(entityID, last)
	if err != nil {
		return Version{}, err
	}
	return Version{Ordinal: last, Record: rec}, nil
}

// History returns every version of entityID, oldest first. Unreadable
// versions are skipped.
func (s *Store) History(entityID string) ([]Version, error) {
	ordinals, err := s.Versions(entityID)
	if err != nil {
		return nil, err
	}
	out := make([]Version, 0, len(ordinals))
	for _, o := range ordinals {
		rec, err := s.Load(entityID, o)
		if err != nil {
			s.cfg.Logger.Warn("snapshot: skip unreadable version", "entity", entityID, "ordinal", o, "error", err)
			continue
		}
		out = append(out, Version{Ordinal: o, Record: rec})
	}
	return out, nil
}

// Entities lists the stored entity identifiers, sorted.
func (s *Store) Entities() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		base, _, ok := s.parseName(e.Name())
		if !ok {
			continue
		}
		if _, dup := seen[base]; dup {
			continue
		}
		seen[base] = struct{}{}
		ids = append(ids, base)
	}
	sort.Strings(ids)
	return ids, nil
}

// create writes a new version file. O_EXCL keeps an existing ordinal intact.
func (s *Store) create(id string, ordinal int, rec domain.Record) error {
	path := s.path(id, ordinal)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return &domain.StorageError{Op: "encode", Path: path, Entity: id, Err: err}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return &domain.StorageError{Op: "create", Path: path, Entity: id, Err: err}
	}
	if err := writeAndClose(f, data); err != nil {
		os.Remove(path)
		return &domain.StorageError{Op: "write", Path: path, Entity: id, Err: err}
	}
	return nil
}

// replace rewrites the latest version through a temp file and rename.
func (s *Store) replace(id string, ordinal int, rec domain.Record) error {
	path := s.path(id, ordinal)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return &domain.StorageError{Op: "encode", Path: path, Entity: id, Err: err}
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return &domain.StorageError{Op: "update", Path: path, Entity: id, Err: err}
	}
	if err := writeAndClose(f, data); err != nil {
		os.Remove(tmp)
		return &domain.StorageError{Op: "update", Path: path, Entity: id, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &domain.StorageError{Op: "update", Path: path, Entity: id, Err: err}
	}
	return nil
}

func writeAndClose(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *Store) fileName(id string, ordinal int) string {
	return fmt.Sprintf("%s%s%s%d%s", s.cfg.Prefix, id, s.cfg.Separator, ordinal, fileExt)
}

func (s *Store) path(id string, ordinal int) string {
	return filepath.Join(s.cfg.Dir, s.fileName(id, ordinal))
}

// parseName splits "{prefix}{id}{sep}{ordinal}.json". The ordinal follows
// the last separator, so ids may contain the separator themselves.
func (s *Store) parseName(name string) (string, int, bool) {
	if !strings.HasPrefix(name, s.cfg.Prefix) || !strings.HasSuffix(name, fileExt) {
		return "", 0, false
	}
	stem := strings.TrimSuffix(strings.TrimPrefix(name, s.cfg.Prefix), fileExt)
	i := strings.LastIndex(stem, s.cfg.Separator)
	if i <= 0 || i+len(s.cfg.Separator) == len(stem) {
		return "", 0, false
	}
	digits := stem[i+len(s.cfg.Separator):]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", 0, false
		}
	}
	ordinal, err := strconv.Atoi(digits)
	if err != nil {
		return "", 0, false
	}
	return stem[:i], ordinal, true
}

// normalizeID maps an entity id onto a safe file name component.
func normalizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.UnknownEntity
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, id)
}
