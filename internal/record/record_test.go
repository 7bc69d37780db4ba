package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaID_KnownTypes(t *testing.T) {
	id, ok := SchemaID(Posts)
	require.True(t, ok)
	assert.Equal(t, "https://wordpress.org/schema/post.json", id)

	id, ok = SchemaID(Terms)
	require.True(t, ok)
	assert.Equal(t, "https://wordpress.org/schema/term.json", id)

	id, ok = SchemaID(Users)
	require.True(t, ok)
	assert.Equal(t, "https://wordpress.org/schema/user.json", id)
}

func TestSchemaID_Unknown(t *testing.T) {
	_, ok := SchemaID(Type("comments"))
	assert.False(t, ok)
}

func TestParseOrder(t *testing.T) {
	order, err := ParseOrder([]string{"terms", "posts"})
	require.NoError(t, err)
	assert.Equal(t, []Type{Terms, Posts}, order)
}

func TestParseOrder_RejectsUnknown(t *testing.T) {
	_, err := ParseOrder([]string{"terms", "comments"})
	assert.Error(t, err)
}

func TestParseOrder_RejectsDuplicate(t *testing.T) {
	_, err := ParseOrder([]string{"terms", "terms"})
	assert.Error(t, err)
}

func TestIndexOf(t *testing.T) {
	assert.Equal(t, 1, IndexOf(DefaultOrder, Terms))
	assert.Equal(t, -1, IndexOf([]Type{Terms}, Posts))
}
