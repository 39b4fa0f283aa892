// Package archive reads the tweet files of a bulk account export.
package archive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"twarchive/internal/parse"
)

// ErrArchiveMissing means the export directory has no data folder. Callers
// skip the archive source when they see it.
var ErrArchiveMissing = errors.New("archive: export data directory missing")

var (
	tweetFile = regexp.MustCompile(`^tweets?(?:-part(\d+))?\.js$`)
	header    = regexp.MustCompile(`^\s*window\.YTD\.[A-Za-z0-9_.]+\s*=\s*`)
)

// Reader lists and decodes the tweet files of one export.
type Reader struct {
	dir   string
	files []string
}

// Open locates dir/data and the tweet files inside it.
func Open(dir string) (*Reader, error) {
	data := filepath.Join(dir, "data")
	st, err := os.Stat(data)
	if err != nil || !st.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrArchiveMissing, data)
	}
	entries, err := os.ReadDir(data)
	if err != nil {
		return nil, fmt.Errorf("archive: list %s: %w", data, err)
	}
	type part struct {
		name string
		n    int
	}
	var parts []part
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := tweetFile.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n := 0
		if m[1] != "" {
			n, _ = strconv.Atoi(m[1])
		}
		parts = append(parts, part{name: e.Name(), n: n})
	}
	sort.Slice(parts, func(i, j int) bool {
		if parts[i].n != parts[j].n {
			return parts[i].n < parts[j].n
		}
		return parts[i].name < parts[j].name
	})
	r := &Reader{dir: dir}
	for _, p := range parts {
		r.files = append(r.files, filepath.Join(data, p.name))
	}
	return r, nil
}

func (r *Reader) Files() []string { return append([]string(nil), r.files...) }

type item struct {
	Tweet parse.RawTweet `json:"tweet"`
}

// Tweets decodes every tweet record across all files, in file order.
func (r *Reader) Tweets() ([]parse.RawTweet, error) {
	var out []parse.RawTweet
	for _, f := range r.files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("archive: read %s: %w", f, err)
		}
		items, err := Decode(b)
		if err != nil {
			return nil, fmt.Errorf("archive: %s: %w", filepath.Base(f), err)
		}
		out = append(out, items...)
	}
	return out, nil
}

// Decode strips the assignment header an export file starts with and
// decodes the [{"tweet": {...}}] array behind it.
func Decode(b []byte) ([]parse.RawTweet, error) {
	b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
	if loc := header.FindIndex(b); loc != nil {
		b = b[loc[1]:]
	}
	b = bytes.TrimRight(bytes.TrimSpace(b), ";")
	var items []item
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, err
	}
	out := make([]parse.RawTweet, 0, len(items))
	for _, it := range items {
		if it.Tweet.TweetID() == 0 {
			continue
		}
		out = append(out, it.Tweet)
	}
	return out, nil
}
