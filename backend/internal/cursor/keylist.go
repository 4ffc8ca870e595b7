package cursor

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ps-vitor/lettings-watch/backend/internal/domain"
)

// LoadKeys reads a key list file. Text files hold one key per line; a
// .json file holds {"postcodes": [...]}. An empty list is an InputError.
func LoadKeys(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &domain.InputError{Msg: "open key list " + path, Err: err}
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		var doc struct {
			Postcodes []string `json:"postcodes"`
		}
		if err := json.NewDecoder(f).Decode(&doc); err != nil {
			return nil, &domain.InputError{Msg: "decode key list " + path, Err: err}
		}
		return compact(doc.Postcodes)
	}
	return ParseKeys(f)
}

// ParseKeys reads one key per line, trimming spaces and skipping blank lines.
func ParseKeys(r io.Reader) ([]string, error) {
	var keys []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		keys = append(keys, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, &domain.InputError{Msg: "read key list", Err: err}
	}
	return compact(keys)
}

// WriteKeys writes keys one per line.
func WriteKeys(w io.Writer, keys []string) error {
	for _, k := range keys {
		if _, err := fmt.Fprintln(w, k); err != nil {
			return err
		}
	}
	return nil
}

func compact(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, k := range in {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return nil, &domain.InputError{Msg: "load keys", Err: domain.ErrEmptyKeyList}
	}
	return out, nil
}
