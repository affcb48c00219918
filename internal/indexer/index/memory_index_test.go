package index

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/errors"
)

func TestMemoryIndexInsertAndGet(t *testing.T) {
	var idx Index = NewMemoryIndex()
	require.NoError(t, idx.Insert("cat", 0, 0))
	require.NoError(t, idx.Insert("dog", 0, 1))
	require.NoError(t, idx.Insert("cat", 1, 0))
	require.Error(t, idx.Insert("", 1, 1))

	cat, err := idx.GetPostings("cat")
	require.NoError(t, err)
	assert.Equal(t, "~0,0~1,0", cat.Encode())

	missing, err := idx.GetPostings("emu")
	require.NoError(t, err)
	assert.Nil(t, missing)

	m := idx.(*MemoryIndex)
	assert.Equal(t, []string{"cat", "dog"}, m.Terms())
	assert.Equal(t, 3, m.Tokens())
	assert.NoError(t, idx.Cleanup())

	m.Reset()
	assert.Equal(t, 0, m.NumTerms())
	assert.Equal(t, 0, m.Tokens())
}

func TestDocMetaRoundTrip(t *testing.T) {
	d := NewDocMeta()
	d.Set(2, "b.txt", 7)
	d.Set(0, "dir;with;semis/a.txt", 3)

	var buf bytes.Buffer
	_, err := d.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, "0;dir;with;semis/a.txt;3\n2;b.txt;7\n", buf.String())

	got, err := ReadDocMeta(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
	assert.Equal(t, "dir;with;semis/a.txt", got.Name(0))
	assert.Equal(t, 7, got.Length(2))
	assert.Equal(t, 2, got.MaxID())
	assert.InDelta(t, 5.0, got.AvgLength(), 1e-9)
}

func TestReadDocMetaSkipsBadLines(t *testing.T) {
	got, err := ReadDocMeta(bytes.NewBufferString("0;a;1\ngarbage\nx;b;2\n3;c;4\n"))
	assert.ErrorIs(t, err, apperrors.ErrCorruptRecord)
	assert.Equal(t, []int{0, 3}, got.IDs())
}

func TestLoadDocMetaMissingFile(t *testing.T) {
	d, err := LoadDocMeta(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, d.Len())
	assert.Equal(t, -1, d.MaxID())
}

func TestSaveLoadDocMeta(t *testing.T) {
	dir := t.TempDir()
	d := NewDocMeta()
	d.Set(0, "x", 1)
	require.NoError(t, SaveDocMeta(dir, d))

	_, err := os.Stat(filepath.Join(dir, DocInfoFile+".tmp"))
	assert.True(t, os.IsNotExist(err))

	got, err := LoadDocMeta(dir)
	require.NoError(t, err)
	assert.Equal(t, "x", got.Name(0))
}
