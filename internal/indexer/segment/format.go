// Package segment implements the on-disk segment: a fixed-size open
// addressing dictionary of 16-byte slots pointing into an append-only data
// file of "term;postings" records.
package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	// SlotSize is the byte width of one dictionary slot:
	// int32 hash, int64 data pointer, int32 record length.
	SlotSize = 16

	// Canonical is the generation of the final merged segment, stored
	// without a numeric suffix.
	Canonical = 0

	dictPrefix = "dictionary"
	dataPrefix = "data"

	// sentinel is written at offset 0 of every data file so that no
	// record starts at pointer 0.
	sentinel = '0'
)

var byteOrder = binary.LittleEndian

// slot is a decoded dictionary entry. A zero hash marks an empty slot.
type slot struct {
	hash   int32
	ptr    int64
	length int32
}

func (s slot) empty() bool { return s.hash == 0 }

func (s slot) put(b []byte) {
	byteOrder.PutUint32(b[0:4], uint32(s.hash))
	byteOrder.PutUint64(b[4:12], uint64(s.ptr))
	byteOrder.PutUint32(b[12:16], uint32(s.length))
}

func decodeSlot(b []byte) slot {
	return slot{
		hash:   int32(byteOrder.Uint32(b[0:4])),
		ptr:    int64(byteOrder.Uint64(b[4:12])),
		length: int32(byteOrder.Uint32(b[12:16])),
	}
}

// TermHash is the 32-bit dictionary hash of term. It is never zero.
func TermHash(term string) int32 {
	h := int32(xxhash.Sum64String(term))
	if h == 0 {
		return 1
	}
	return h
}

func homeSlot(h int32, tableSize int) int {
	return int(uint32(h) % uint32(tableSize))
}

// DictPath is the dictionary file of generation gen in dir.
func DictPath(dir string, gen int) string {
	return filepath.Join(dir, fileName(dictPrefix, gen))
}

// DataPath is the data file of generation gen in dir.
func DataPath(dir string, gen int) string {
	return filepath.Join(dir, fileName(dataPrefix, gen))
}

func fileName(prefix string, gen int) string {
	if gen == Canonical {
		return prefix
	}
	return prefix + "_" + strconv.Itoa(gen)
}

// Exists reports whether both files of generation gen are present.
func Exists(dir string, gen int) bool {
	_, err1 := os.Stat(DictPath(dir, gen))
	_, err2 := os.Stat(DataPath(dir, gen))
	return err1 == nil && err2 == nil
}

// Remove deletes the files of generation gen. Missing files are not an error.
func Remove(dir string, gen int) error {
	var errs []error
	for _, p := range []string{DictPath(dir, gen), DataPath(dir, gen)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Promote renames generation gen to the canonical segment.
func Promote(dir string, gen int) error {
	if gen == Canonical {
		return nil
	}
	if err := os.Rename(DataPath(dir, gen), DataPath(dir, Canonical)); err != nil {
		return fmt.Errorf("promoting data of generation %d: %w", gen, err)
	}
	if err := os.Rename(DictPath(dir, gen), DictPath(dir, Canonical)); err != nil {
		return fmt.Errorf("promoting dictionary of generation %d: %w", gen, err)
	}
	return nil
}

// Generations lists the numbered generations with both files present in
// dir, ascending.
func Generations(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading index directory: %w", err)
	}
	var gens []int
	for _, e := range entries {
		suffix, ok := strings.CutPrefix(e.Name(), dictPrefix+"_")
		if !ok || e.IsDir() {
			continue
		}
		gen, err := strconv.Atoi(suffix)
		if err != nil || gen <= 0 {
			continue
		}
		if Exists(dir, gen) {
			gens = append(gens, gen)
		}
	}
	slices.Sort(gens)
	return gens, nil
}
