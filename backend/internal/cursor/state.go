// Package cursor tracks the last processed key of a fixed key list so that
// repeated runs walk the list round-robin.
package cursor

import (
	"fmt"

	"github.com/ps-vitor/lettings-watch/backend/internal/domain"
)

// State is the persisted cursor value. A nil LastPostcode means no key has
// completed yet.
type State struct {
	LastPostcode *string `json:"last_postcode"`
}

// Last returns the last completed key and whether there is one.
func (s State) Last() (string, bool) {
	if s.LastPostcode == nil {
		return "", false
	}
	return *s.LastPostcode, true
}

// Advance returns a copy of s pointing at key.
func (s State) Advance(key string) State {
	k := key
	return State{LastPostcode: &k}
}

// StartIndex is the position the next run starts from: just after the last
// completed key, or 0 when there is none or it left the list.
func StartIndex(s State, keys []string) int {
	last, ok := s.Last()
	if !ok || len(keys) == 0 {
		return 0
	}
	for i, k := range keys {
		if k == last {
			return (i + 1) % len(keys)
		}
	}
	return 0
}

// NextKeys returns count keys starting at StartIndex, wrapping around the
// list as often as needed.
func NextKeys(s State, keys []string, count int) ([]string, error) {
	if len(keys) == 0 {
		return nil, &domain.InputError{Msg: "next keys", Err: domain.ErrEmptyKeyList}
	}
	if count < 1 {
		return nil, &domain.InputError{Msg: fmt.Sprintf("invalid key count %d", count)}
	}
	start := StartIndex(s, keys)
	out := make([]string, count)
	for i := range out {
		out[i] = keys[(start+i)%len(keys)]
	}
	return out, nil
}
