package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariantSetJSONFieldNaming(t *testing.T) {
	set := shapes()
	set.MaxPayload = 32

	data, err := json.Marshal(set)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"max_payload":32`)
	assert.NotContains(t, string(data), `"MaxPayload"`)

	data, err = json.Marshal(shapes())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "max_payload", "zero cap is omitted")
}

func TestVariantSetLookup(t *testing.T) {
	set := shapes()
	assert.Equal(t, []string{"circle", "rect"}, set.Labels())

	v, ok := set.Lookup("rect")
	require.True(t, ok)
	assert.Equal(t, "rect_area", v.Op)

	_, ok = set.Lookup("hexagon")
	assert.False(t, ok)
}

func TestVariantSetCanonicalForm(t *testing.T) {
	got, err := MarshalCanonical(VariantSet{Variants: []VariantSpec{
		{Label: "c", Op: "sum", Fields: []FieldSpec{{Name: "x", Type: "int8"}}},
	}}.ToValue())
	require.NoError(t, err)
	assert.Equal(t, `{"max_payload":0,"variants":[{"fields":[{"name":"x","type":"int8"}],"label":"c","op":"sum"}]}`, string(got))
}
