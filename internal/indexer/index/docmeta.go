package index

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/errors"
)

// DocInfoFile is the name of the document metadata file inside an index
// directory.
const DocInfoFile = "docInfo"

// DocInfo describes one indexed document.
type DocInfo struct {
	Name   string
	Length int
}

// DocMeta maps document ids to names and token lengths.
type DocMeta struct {
	mu    sync.RWMutex
	docs  map[int]DocInfo
	maxID int
}

func NewDocMeta() *DocMeta {
	return &DocMeta{docs: make(map[int]DocInfo), maxID: -1}
}

func (d *DocMeta) Set(docID int, name string, length int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.docs[docID] = DocInfo{Name: name, Length: length}
	if docID > d.maxID {
		d.maxID = docID
	}
}

func (d *DocMeta) Get(docID int) (DocInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info, ok := d.docs[docID]
	return info, ok
}

func (d *DocMeta) Name(docID int) string {
	info, _ := d.Get(docID)
	return info.Name
}

// Length is the token count of docID, or 0 when unknown.
func (d *DocMeta) Length(docID int) int {
	info, _ := d.Get(docID)
	return info.Length
}

// Len is the number of documents, N in the ranking formulas.
func (d *DocMeta) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.docs)
}

// MaxID is the largest document id, or -1 for an empty table.
func (d *DocMeta) MaxID() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.maxID
}

// AvgLength is the mean document length.
func (d *DocMeta) AvgLength() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.docs) == 0 {
		return 0
	}
	total := 0
	for _, info := range d.docs {
		total += info.Length
	}
	return float64(total) / float64(len(d.docs))
}

// IDs returns all document ids in ascending order.
func (d *DocMeta) IDs() []int {
	d.mu.RLock()
	ids := make([]int, 0, len(d.docs))
	for id := range d.docs {
		ids = append(ids, id)
	}
	d.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// WriteTo writes one "docID;name;length" line per document in id order.
func (d *DocMeta) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, id := range d.IDs() {
		info, _ := d.Get(id)
		m, err := fmt.Fprintf(bw, "%d;%s;%d\n", id, info.Name, info.Length)
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}

// ReadDocMeta parses docInfo lines. Malformed lines are skipped and
// reported in the returned error alongside the parsed table.
func ReadDocMeta(r io.Reader) (*DocMeta, error) {
	d := NewDocMeta()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	var errs []error
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == "" {
			continue
		}
		idField, rest, ok1 := strings.Cut(text, ";")
		sep := strings.LastIndexByte(rest, ';')
		if !ok1 || sep < 0 {
			errs = append(errs, apperrors.Corruptf("docInfo line %d", line))
			continue
		}
		id, err1 := strconv.Atoi(idField)
		length, err2 := strconv.Atoi(rest[sep+1:])
		if err1 != nil || err2 != nil || id < 0 {
			errs = append(errs, apperrors.Corruptf("docInfo line %d", line))
			continue
		}
		d.Set(id, rest[:sep], length)
	}
	if err := sc.Err(); err != nil {
		errs = append(errs, fmt.Errorf("reading docInfo: %w", err))
	}
	return d, errors.Join(errs...)
}

// LoadDocMeta reads dir/docInfo. A missing file yields an empty table;
// corrupt lines are logged and skipped.
func LoadDocMeta(dir string) (*DocMeta, error) {
	f, err := os.Open(filepath.Join(dir, DocInfoFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDocMeta(), nil
		}
		return nil, fmt.Errorf("opening docInfo: %w", err)
	}
	defer f.Close()
	d, err := ReadDocMeta(f)
	if err != nil {
		if !errors.Is(err, apperrors.ErrCorruptRecord) {
			return nil, err
		}
		slog.Default().With("component", "docmeta").Warn("skipped corrupt docInfo lines",
			"dir", dir,
			"error", err,
		)
	}
	return d, nil
}

// SaveDocMeta writes dir/docInfo through a temporary file and rename.
func SaveDocMeta(dir string, d *DocMeta) error {
	path := filepath.Join(dir, DocInfoFile)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating docInfo: %w", err)
	}
	if _, err := d.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("writing docInfo: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing docInfo: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing docInfo: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming docInfo: %w", err)
	}
	return nil
}
