package segment

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/errors"
)

// Reader looks terms up in a closed segment. It only uses ReadAt and is safe
// for concurrent use.
type Reader struct {
	gen       int
	tableSize int
	dict      *os.File
	data      *os.File
	dataSize  int64
}

// Open opens generation gen in dir. The table size is taken from the
// dictionary length.
func Open(dir string, gen int) (*Reader, error) {
	dict, err := os.Open(DictPath(dir, gen))
	if err != nil {
		return nil, fmt.Errorf("opening dictionary: %w", err)
	}
	dictInfo, err := dict.Stat()
	if err != nil {
		dict.Close()
		return nil, fmt.Errorf("stat dictionary: %w", err)
	}
	if dictInfo.Size() == 0 || dictInfo.Size()%SlotSize != 0 {
		dict.Close()
		return nil, apperrors.Corruptf("dictionary %s has size %d", dict.Name(), dictInfo.Size())
	}
	data, err := os.Open(DataPath(dir, gen))
	if err != nil {
		dict.Close()
		return nil, fmt.Errorf("opening data file: %w", err)
	}
	dataInfo, err := data.Stat()
	if err != nil {
		dict.Close()
		data.Close()
		return nil, fmt.Errorf("stat data file: %w", err)
	}
	return &Reader{
		gen:       gen,
		tableSize: int(dictInfo.Size() / SlotSize),
		dict:      dict,
		data:      data,
		dataSize:  dataInfo.Size(),
	}, nil
}

func (r *Reader) Gen() int       { return r.gen }
func (r *Reader) TableSize() int { return r.tableSize }

// GetPostings returns the postings of term, or nil when the term is absent.
// A record with corrupt postings yields the parseable part and an error.
func (r *Reader) GetPostings(term string) (*index.PostingsList, error) {
	rec, err := r.Record(term)
	if rec == nil || err != nil {
		return nil, err
	}
	return index.ParsePostings(string(rec))
}

// Record returns the encoded postings of term without decoding them, or nil
// when the term is absent. Probing stops at an empty slot or after a full
// cycle of the table.
func (r *Reader) Record(term string) ([]byte, error) {
	h := TermHash(term)
	home := homeSlot(h, r.tableSize)
	buf := make([]byte, SlotSize)
	for i := home; ; {
		if _, err := r.dict.ReadAt(buf, int64(i)*SlotSize); err != nil {
			return nil, fmt.Errorf("reading slot %d: %w", i, err)
		}
		s := decodeSlot(buf)
		if s.empty() {
			return nil, nil
		}
		if s.hash == h {
			rec, err := r.readRecord(s)
			if err != nil {
				return nil, fmt.Errorf("slot %d: %w", i, err)
			}
			if key, postings, ok := bytes.Cut(rec, []byte{';'}); ok && string(key) == term {
				return postings, nil
			}
		}
		i = (i + 1) % r.tableSize
		if i == home {
			return nil, nil
		}
	}
}

func (r *Reader) readRecord(s slot) ([]byte, error) {
	if s.ptr < 1 || s.length < 2 || s.ptr+int64(s.length) > r.dataSize {
		return nil, apperrors.Corruptf("pointer %d length %d outside data file of %d bytes", s.ptr, s.length, r.dataSize)
	}
	rec := make([]byte, s.length)
	if _, err := r.data.ReadAt(rec, s.ptr); err != nil {
		return nil, fmt.Errorf("reading record at %d: %w", s.ptr, err)
	}
	return rec, nil
}

// Scan calls fn for every term in dictionary order. Corrupt records are
// skipped and reported together once the scan completes; an error from fn
// stops the scan.
func (r *Reader) Scan(fn func(term string, postings []byte) error) error {
	br := bufio.NewReaderSize(io.NewSectionReader(r.dict, 0, int64(r.tableSize)*SlotSize), 1<<20)
	buf := make([]byte, SlotSize)
	var corrupt []error
	for i := 0; i < r.tableSize; i++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			return fmt.Errorf("reading slot %d: %w", i, err)
		}
		s := decodeSlot(buf)
		if s.empty() {
			continue
		}
		rec, err := r.readRecord(s)
		if err != nil {
			if !errors.Is(err, apperrors.ErrCorruptRecord) {
				return err
			}
			corrupt = append(corrupt, fmt.Errorf("slot %d: %w", i, err))
			continue
		}
		key, postings, ok := bytes.Cut(rec, []byte{';'})
		if !ok || len(key) == 0 {
			corrupt = append(corrupt, apperrors.Corruptf("slot %d: record without term", i))
			continue
		}
		if err := fn(string(key), postings); err != nil {
			return err
		}
	}
	return errors.Join(corrupt...)
}

// Close releases both files.
func (r *Reader) Close() error {
	return errors.Join(r.dict.Close(), r.data.Close())
}
