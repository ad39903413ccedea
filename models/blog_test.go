package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockListValueScanRoundtrip(t *testing.T) {
	in := BlockList{
		{Type: "heading", Value: "Watering"},
		{Type: "paragraph", Value: "Less is more."},
	}

	raw, err := in.Value()
	require.NoError(t, err)

	var out BlockList
	require.NoError(t, out.Scan(raw))
	assert.Equal(t, in, out)
}

func TestBlockListScanHandlesInputs(t *testing.T) {
	var out BlockList
	require.NoError(t, out.Scan(nil))
	assert.Empty(t, out)

	require.NoError(t, out.Scan([]byte(`[{"type":"quote","value":"Grow."}]`)))
	require.Len(t, out, 1)
	assert.Equal(t, "quote", out[0].Type)

	require.NoError(t, out.Scan(`[{"type":"image","value":"/x.jpg"}]`))
	require.Len(t, out, 1)
	assert.Equal(t, "image", out[0].Type)

	assert.Error(t, out.Scan(12345))
}

func TestValidBlockType(t *testing.T) {
	for _, kind := range []string{"heading", "paragraph", "image", "quote"} {
		assert.True(t, ValidBlockType(kind), kind)
	}
	assert.False(t, ValidBlockType("video"))
	assert.False(t, ValidBlockType(""))
}

func TestValidReactionKind(t *testing.T) {
	for _, kind := range ReactionKinds {
		assert.True(t, ValidReactionKind(kind), kind)
	}
	assert.False(t, ValidReactionKind("angry"))
}
