package snapshot

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/ps-vitor/lettings-watch/backend/internal/domain"
)

// Differs reports whether newRec and oldRec differ once the ignored
// top-level fields are removed. Mapping key order is irrelevant, sequence
// order is significant. A record that cannot be serialised counts as changed.
func Differs(newRec, oldRec domain.Record, ignored []string) bool {
	a, err := canonical(newRec, ignored)
	if err != nil {
		return true
	}
	b, err := canonical(oldRec, ignored)
	if err != nil {
		return true
	}
	return !bytes.Equal(a, b)
}

// canonical serialises r without the ignored keys. encoding/json writes map
// keys in sorted order at every depth; numbers are decoded as json.Number
// and rewritten by canonicalNumber so 1 and 1.0 compare equal while large
// integers keep every digit.
func canonical(r domain.Record, ignored []string) ([]byte, error) {
	trimmed := make(map[string]any, len(r))
	for k, v := range r {
		trimmed[k] = v
	}
	for _, k := range ignored {
		delete(trimmed, k)
	}

	raw, err := json.Marshal(trimmed)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(normalize(generic))
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	case json.Number:
		return canonicalNumber(t)
	}
	return v
}

// canonicalNumber keeps plain integers verbatim. Fractions and exponents
// go through float64; integral values below 2^53 are written as integers.
func canonicalNumber(n json.Number) json.Number {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		if s == "-0" {
			return "0"
		}
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return n
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return json.Number(strconv.FormatInt(int64(f), 10))
	}
	return json.Number(strconv.FormatFloat(f, 'g', -1, 64))
}
