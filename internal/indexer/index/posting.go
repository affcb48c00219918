// Package index holds the in-memory side of the inverted index: postings
// lists, the document metadata table, and the Index capability shared by the
// memory and persistent backends.
package index

import (
	"errors"
	"slices"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	apperrors "github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/errors"
)

const (
	docSep    = '~'
	offsetSep = ','
)

// Posting is one document's entry in a term's postings list. Offsets are
// strictly increasing token positions.
type Posting struct {
	DocID   int
	Score   float64
	Offsets []int
}

// PostingsList keeps postings strictly increasing by DocID.
type PostingsList struct {
	postings []Posting
}

func NewPostingsList() *PostingsList {
	return &PostingsList{}
}

func (l *PostingsList) search(docID int) (int, bool) {
	return slices.BinarySearchFunc(l.postings, docID, func(p Posting, id int) int {
		return p.DocID - id
	})
}

// AddDoc returns the posting for docID, inserting an empty one if needed.
func (l *PostingsList) AddDoc(docID int) *Posting {
	i, ok := l.search(docID)
	if !ok {
		l.postings = slices.Insert(l.postings, i, Posting{DocID: docID})
	}
	return &l.postings[i]
}

// Add records an occurrence of the term at offset in docID. Duplicate
// offsets are ignored.
func (l *PostingsList) Add(docID, offset int) {
	p := l.AddDoc(docID)
	j, found := slices.BinarySearch(p.Offsets, offset)
	if found {
		return
	}
	p.Offsets = slices.Insert(p.Offsets, j, offset)
}

// Merge folds every (docID, offset) of other into l. The result is the
// same regardless of merge order.
func (l *PostingsList) Merge(other *PostingsList) {
	if other == nil {
		return
	}
	for _, p := range other.postings {
		if len(p.Offsets) == 0 {
			l.AddDoc(p.DocID)
			continue
		}
		for _, off := range p.Offsets {
			l.Add(p.DocID, off)
		}
	}
}

// SetScore sets the score of docID's posting. Unknown documents are ignored.
func (l *PostingsList) SetScore(docID int, score float64) {
	if i, ok := l.search(docID); ok {
		l.postings[i].Score = score
	}
}

// Entry returns docID's posting or nil.
func (l *PostingsList) Entry(docID int) *Posting {
	if l == nil {
		return nil
	}
	if i, ok := l.search(docID); ok {
		return &l.postings[i]
	}
	return nil
}

// Len is the document frequency of the list.
func (l *PostingsList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.postings)
}

// Get returns the i-th posting in DocID order.
func (l *PostingsList) Get(i int) *Posting {
	return &l.postings[i]
}

// Postings exposes the backing slice. Callers must not reorder it.
func (l *PostingsList) Postings() []Posting {
	if l == nil {
		return nil
	}
	return l.postings
}

// DocIDs returns the document ids in ascending order.
func (l *PostingsList) DocIDs() []int {
	ids := make([]int, l.Len())
	for i := range ids {
		ids[i] = l.postings[i].DocID
	}
	return ids
}

// DocSet returns the list's documents as a bitmap.
func (l *PostingsList) DocSet() *roaring.Bitmap {
	bm := roaring.New()
	for _, p := range l.Postings() {
		bm.Add(uint32(p.DocID))
	}
	return bm
}

// FromDocSet builds an offset-free list from a bitmap.
func FromDocSet(bm *roaring.Bitmap) *PostingsList {
	l := &PostingsList{postings: make([]Posting, 0, bm.GetCardinality())}
	it := bm.Iterator()
	for it.HasNext() {
		l.postings = append(l.postings, Posting{DocID: int(it.Next())})
	}
	return l
}

// ByScore returns a copy of the postings ordered by descending score. Equal
// scores keep DocID order.
func (l *PostingsList) ByScore() []Posting {
	out := slices.Clone(l.Postings())
	slices.SortStableFunc(out, func(a, b Posting) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	return out
}

// Encode renders the list as ~docID,off,off~docID,...
func (l *PostingsList) Encode() string {
	return string(l.AppendEncoded(nil))
}

// AppendEncoded appends the encoded list to buf.
func (l *PostingsList) AppendEncoded(buf []byte) []byte {
	for _, p := range l.Postings() {
		buf = append(buf, docSep)
		buf = strconv.AppendInt(buf, int64(p.DocID), 10)
		for _, off := range p.Offsets {
			buf = append(buf, offsetSep)
			buf = strconv.AppendInt(buf, int64(off), 10)
		}
	}
	return buf
}

// ParsePostings decodes the output of Encode, optionally preceded by the
// "term;" key of a data file record. Empty fields, such as a trailing
// comma, are tolerated. A posting with an unparseable number is skipped
// and reported; the rest of the list is still returned.
func ParsePostings(s string) (*PostingsList, error) {
	if key, rest, ok := strings.Cut(s, ";"); ok && !strings.ContainsRune(key, docSep) {
		s = rest
	}
	l := NewPostingsList()
	var errs []error
	for chunk := range strings.SplitSeq(s, string(docSep)) {
		if chunk == "" {
			continue
		}
		docField, rest, _ := strings.Cut(chunk, string(offsetSep))
		docID, err := strconv.Atoi(docField)
		if err != nil || docID < 0 {
			errs = append(errs, apperrors.Corruptf("doc id %q", docField))
			continue
		}
		offsets, err := parseOffsets(rest)
		if err != nil {
			errs = append(errs, apperrors.Corruptf("doc %d: %v", docID, err))
			continue
		}
		if len(offsets) == 0 {
			l.AddDoc(docID)
		}
		for _, off := range offsets {
			l.Add(docID, off)
		}
	}
	return l, errors.Join(errs...)
}

func parseOffsets(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	offsets := make([]int, 0, strings.Count(s, string(offsetSep))+1)
	for field := range strings.SplitSeq(s, string(offsetSep)) {
		if field == "" {
			continue
		}
		off, err := strconv.Atoi(field)
		if err != nil || off < 0 {
			return nil, errors.New("offset " + strconv.Quote(field))
		}
		offsets = append(offsets, off)
	}
	return offsets, nil
}
