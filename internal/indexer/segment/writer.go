package segment

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/errors"
)

// Stats summarizes a written segment.
type Stats struct {
	Terms      int
	Collisions int
	DataBytes  int64
	// Corrupt counts input records a merge dropped or only partly recovered.
	Corrupt int
}

// Writer builds one segment generation. Files are written under .tmp names
// and renamed into place by Close, so readers never see a partial segment.
type Writer struct {
	dir       string
	gen       int
	tableSize int

	table    []byte
	dictFile *os.File
	dataFile *os.File
	data     *bufio.Writer
	free     int64
	stats    Stats
	recBuf   []byte
	closed   bool
}

// Create starts a new segment of tableSize slots for generation gen.
func Create(dir string, gen, tableSize int) (*Writer, error) {
	if tableSize <= 0 {
		return nil, fmt.Errorf("%w: table size %d", apperrors.ErrInvalidInput, tableSize)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	dictFile, err := os.Create(DictPath(dir, gen) + ".tmp")
	if err != nil {
		return nil, fmt.Errorf("creating dictionary file: %w", err)
	}
	if err := dictFile.Truncate(int64(tableSize) * SlotSize); err != nil {
		dictFile.Close()
		return nil, fmt.Errorf("sizing dictionary file: %w", err)
	}
	dataFile, err := os.Create(DataPath(dir, gen) + ".tmp")
	if err != nil {
		dictFile.Close()
		return nil, fmt.Errorf("creating data file: %w", err)
	}
	w := &Writer{
		dir:       dir,
		gen:       gen,
		tableSize: tableSize,
		table:     make([]byte, tableSize*SlotSize),
		dictFile:  dictFile,
		dataFile:  dataFile,
		data:      bufio.NewWriterSize(dataFile, 1<<20),
	}
	if err := w.data.WriteByte(sentinel); err != nil {
		w.Abort()
		return nil, fmt.Errorf("writing data sentinel: %w", err)
	}
	w.free = 1
	return w, nil
}

// Gen is the generation being written.
func (w *Writer) Gen() int { return w.gen }

// Add appends term with its postings list.
func (w *Writer) Add(term string, list *index.PostingsList) error {
	w.recBuf = list.AppendEncoded(w.recBuf[:0])
	return w.AddRecord(term, w.recBuf)
}

// AddRecord appends term with already encoded postings. Terms must be
// unique within a segment.
func (w *Writer) AddRecord(term string, postings []byte) error {
	if w.closed {
		return errors.New("segment writer is closed")
	}
	if term == "" || strings.ContainsRune(term, ';') {
		return fmt.Errorf("%w: term %q", apperrors.ErrInvalidInput, term)
	}
	h := TermHash(term)
	home := homeSlot(h, w.tableSize)
	i := home
	for !decodeSlot(w.table[i*SlotSize:]).empty() {
		w.stats.Collisions++
		i = (i + 1) % w.tableSize
		if i == home {
			return fmt.Errorf("%w: %d slots, term %q", apperrors.ErrTableFull, w.tableSize, term)
		}
	}

	length := len(term) + 1 + len(postings)
	if _, err := w.data.WriteString(term); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	if err := w.data.WriteByte(';'); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	if _, err := w.data.Write(postings); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	slot{hash: h, ptr: w.free, length: int32(length)}.put(w.table[i*SlotSize:])
	w.free += int64(length)
	w.stats.Terms++
	return nil
}

// Close flushes and syncs both files, then renames them into place.
func (w *Writer) Close() (Stats, error) {
	if w.closed {
		return w.stats, errors.New("segment writer is closed")
	}
	w.closed = true
	w.stats.DataBytes = w.free

	if err := w.data.Flush(); err != nil {
		w.Abort()
		return w.stats, fmt.Errorf("flushing data file: %w", err)
	}
	if _, err := w.dictFile.WriteAt(w.table, 0); err != nil {
		w.Abort()
		return w.stats, fmt.Errorf("writing dictionary: %w", err)
	}
	for _, f := range []*os.File{w.dataFile, w.dictFile} {
		if err := f.Sync(); err != nil {
			w.Abort()
			return w.stats, fmt.Errorf("syncing %s: %w", f.Name(), err)
		}
		if err := f.Close(); err != nil {
			w.Abort()
			return w.stats, fmt.Errorf("closing %s: %w", f.Name(), err)
		}
	}
	if err := os.Rename(DataPath(w.dir, w.gen)+".tmp", DataPath(w.dir, w.gen)); err != nil {
		return w.stats, fmt.Errorf("renaming data file: %w", err)
	}
	if err := os.Rename(DictPath(w.dir, w.gen)+".tmp", DictPath(w.dir, w.gen)); err != nil {
		return w.stats, fmt.Errorf("renaming dictionary file: %w", err)
	}
	w.table = nil
	return w.stats, nil
}

// Abort discards a segment that will not be closed.
func (w *Writer) Abort() {
	w.closed = true
	w.dictFile.Close()
	w.dataFile.Close()
	os.Remove(DictPath(w.dir, w.gen) + ".tmp")
	os.Remove(DataPath(w.dir, w.gen) + ".tmp")
	w.table = nil
}
