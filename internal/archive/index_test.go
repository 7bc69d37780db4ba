package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/wxzimport/internal/record"
	"github.com/roach88/wxzimport/internal/testutil"
)

func TestBuildIndex_GroupsByTypeInDiskOrder(t *testing.T) {
	a := &testutil.MemArchive{Entries: []testutil.Entry{
		{Name: "posts/1.json"},
		{Name: "terms/1.json"},
		{Name: "posts/2.json"},
		{Name: "terms/2.json"},
	}}

	idx := BuildIndex(a, []record.Type{record.Terms, record.Posts})

	assert.Equal(t, 2, idx.Len(record.Terms))
	assert.Equal(t, 2, idx.Len(record.Posts))

	p, ok := idx.Position(record.Posts, 0)
	assert.True(t, ok)
	assert.Equal(t, 0, p)
	p, ok = idx.Position(record.Posts, 1)
	assert.True(t, ok)
	assert.Equal(t, 2, p)
	p, ok = idx.Position(record.Terms, 1)
	assert.True(t, ok)
	assert.Equal(t, 3, p)
}

func TestBuildIndex_SkipsUnrecognizedEntries(t *testing.T) {
	a := &testutil.MemArchive{Entries: []testutil.Entry{
		{Name: "terms/"},
		{Name: "terms/readme.txt"},
		{Name: "terms/nested/1.json"},
		{Name: "comments/1.json"},
		{Name: "index.json"},
		{Name: "terms/1.json"},
	}}

	idx := BuildIndex(a, record.DefaultOrder)

	assert.Equal(t, 1, idx.Len(record.Terms))
	p, ok := idx.Position(record.Terms, 0)
	assert.True(t, ok)
	assert.Equal(t, 5, p)
	assert.Equal(t, map[record.Type]int{record.Users: 0, record.Terms: 1, record.Posts: 0}, idx.Counts())
}

func TestBuildIndex_OnlyRequestedTypes(t *testing.T) {
	a := &testutil.MemArchive{Entries: []testutil.Entry{
		{Name: "users/1.json"},
		{Name: "terms/1.json"},
	}}

	idx := BuildIndex(a, []record.Type{record.Terms})

	assert.Equal(t, 0, idx.Len(record.Users))
	assert.Equal(t, 1, idx.Len(record.Terms))
}

func TestBuildIndex_NormalizesNames(t *testing.T) {
	// Decomposed "é" (e + combining acute), as written by some zip tools.
	a := &testutil.MemArchive{Entries: []testutil.Entry{
		{Name: "posts/cafe\u0301.json"},
	}}

	idx := BuildIndex(a, record.DefaultOrder)
	assert.Equal(t, 1, idx.Len(record.Posts))
}

func TestIndex_PositionOutOfRange(t *testing.T) {
	idx := BuildIndex(&testutil.MemArchive{}, record.DefaultOrder)

	_, ok := idx.Position(record.Posts, 0)
	assert.False(t, ok)
	_, ok = idx.Position(record.Posts, -1)
	assert.False(t, ok)
}
