package query

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	lower := func(w string) (string, bool) {
		w = strings.ToLower(w)
		if w == "the" {
			return "", false
		}
		return w, true
	}
	q := Parse("  The Cat^2.5 sat^x DO*g ", lower)
	assert.Equal(t, []Term{
		{Text: "cat", Weight: 2.5},
		{Text: "sat^x", Weight: 1},
		{Text: "do*g", Weight: 1},
	}, q.Terms)
	assert.True(t, q.HasWildcard())
	assert.InDelta(t, 4.5, q.Length(), 1e-12)
}

func TestParseEmpty(t *testing.T) {
	q := Parse("   ", nil)
	assert.Equal(t, 0, q.Len())
	assert.False(t, q.HasWildcard())
}

func TestStringRoundTrip(t *testing.T) {
	q := Query{Terms: []Term{{Text: "a", Weight: 1}, {Text: "b", Weight: 0.25}}}
	assert.Equal(t, "a b^0.25", q.String())
	assert.Equal(t, q, Parse(q.String(), nil))
}

func TestFeedback(t *testing.T) {
	q := New("cat", "dog")
	docs := map[int]map[string]int{
		7: {"cat": 2, "mouse": 1},
		9: {"bird": 4},
	}
	docTerms := func(id int) (map[string]int, error) { return docs[id], nil }

	got, err := Feedback(q, []int{7, 9}, []bool{true, false}, docTerms, 0.2, 0.8)
	require.NoError(t, err)

	want := map[string]float64{
		"cat":   0.2*0.5 + 0.8*2,
		"dog":   0.2 * 0.5,
		"mouse": 0.8,
	}
	require.Len(t, got.Terms, 3)
	assert.Equal(t, []string{"cat", "dog", "mouse"}, got.Texts())
	for _, term := range got.Terms {
		assert.InDelta(t, want[term.Text], term.Weight, 1e-12, term.Text)
	}
	// the input is left untouched
	assert.Equal(t, New("cat", "dog"), q)
}

func TestFeedbackNormalizesByInitialLength(t *testing.T) {
	q := Query{Terms: []Term{{Text: "a", Weight: 3}, {Text: "b", Weight: 1}}}
	got, err := Feedback(q, nil, nil, nil, 1, 0.8)
	require.NoError(t, err)
	require.Len(t, got.Terms, 2)
	assert.InDelta(t, 0.75, got.Terms[0].Weight, 1e-12)
	assert.InDelta(t, 0.25, got.Terms[1].Weight, 1e-12)
	assert.InDelta(t, 1, got.Length(), 1e-12)
}

func TestFeedbackPropagatesErrors(t *testing.T) {
	boom := errors.New("unreadable")
	_, err := Feedback(New("a"), []int{1}, []bool{true}, func(int) (map[string]int, error) {
		return nil, boom
	}, 1, 1)
	assert.ErrorIs(t, err, boom)
}
