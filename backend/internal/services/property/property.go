package services

import (
	"errors"
	"fmt"
	"os"

	"github.com/ps-vitor/lettings-watch/backend/internal/domain"
	"github.com/ps-vitor/lettings-watch/backend/internal/snapshot"
)

// ErrUnknownSource is returned for a source without a configured store.
var ErrUnknownSource = errors.New("unknown source")

// VersionStore is the read side of a snapshot namespace.
type VersionStore interface {
	Entities() ([]string, error)
	Versions(entityID string) ([]int, error)
	Latest(entityID string) (snapshot.Version, error)
	History(entityID string) ([]snapshot.Version, error)
	Load(entityID string, ordinal int) (domain.Record, error)
}

// Property is an entity with its latest stored version.
type Property struct {
	Source   domain.Source `json:"source"`
	ID       string        `json:"id"`
	Versions int           `json:"versions"`
	Latest   domain.Record `json:"latest"`
}

type PropertyService struct {
	stores map[domain.Source]VersionStore
}

func NewPropertyService(stores map[domain.Source]VersionStore) *PropertyService {
	return &PropertyService{stores: stores}
}

func (s *PropertyService) store(src domain.Source) (VersionStore, error) {
	st, ok := s.stores[src]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, src)
	}
	return st, nil
}

// FindAll lists every entity of src with its latest version. Entities
// whose latest file cannot be read are listed without a record.
func (s *PropertyService) FindAll(src domain.Source) ([]Property, error) {
	st, err := s.store(src)
	if err != nil {
		return nil, err
	}
	ids, err := st.Entities()
	if err != nil {
		return nil, fmt.Errorf("property: list %s: %w", src, err)
	}
	out := make([]Property, 0, len(ids))
	for _, id := range ids {
		p, err := s.find(st, src, id)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			var corrupt *domain.CorruptVersionError
			if !errors.As(err, &corrupt) {
				return nil, err
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// Find returns one entity with its latest version.
func (s *PropertyService) Find(src domain.Source, id string) (Property, error) {
	st, err := s.store(src)
	if err != nil {
		return Property{}, err
	}
	return s.find(st, src, id)
}

func (s *PropertyService) find(st VersionStore, src domain.Source, id string) (Property, error) {
	p := Property{Source: src, ID: id}
	ordinals, err := st.Versions(id)
	if err != nil {
		return p, fmt.Errorf("property: versions of %s: %w", id, err)
	}
	if len(ordinals) == 0 {
		return p, fmt.Errorf("property: %s %q: %w", src, id, domain.ErrNotFound)
	}
	p.Versions = len(ordinals)
	latest, err := st.Latest(id)
	if err != nil {
		return p, notFound(src, id, err)
	}
	p.Latest = latest.Record
	return p, nil
}

// History returns every version of an entity, oldest first.
func (s *PropertyService) History(src domain.Source, id string) ([]snapshot.Version, error) {
	st, err := s.store(src)
	if err != nil {
		return nil, err
	}
	versions, err := st.History(id)
	if err != nil {
		return nil, fmt.Errorf("property: history of %s: %w", id, err)
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("property: %s %q: %w", src, id, domain.ErrNotFound)
	}
	return versions, nil
}

// Version returns one stored version.
func (s *PropertyService) Version(src domain.Source, id string, ordinal int) (domain.Record, error) {
	st, err := s.store(src)
	if err != nil {
		return nil, err
	}
	rec, err := st.Load(id, ordinal)
	if err != nil {
		return nil, notFound(src, id, err)
	}
	return rec, nil
}

func notFound(src domain.Source, id string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("property: %s %q: %w", src, id, domain.ErrNotFound)
	}
	return fmt.Errorf("property: %s %q: %w", src, id, err)
}
