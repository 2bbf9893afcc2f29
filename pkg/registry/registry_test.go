package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	reg := Default()
	assert.Empty(t, reg.Validate())

	portal, ok := reg.Get("portal")
	require.True(t, ok)
	assert.Equal(t, []string{"insight", "task", "thoughtProvokingQuestion"}, portal.FieldNames())
	assert.False(t, portal.CrisisFilter)

	bt, ok := reg.Get("breakthrough")
	require.True(t, ok)
	assert.True(t, bt.CrisisFilter)
	assert.True(t, bt.Fields[3].IsSuffix())

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestValidate_Problems(t *testing.T) {
	base := func() Variant {
		v, _ := Default().Get("portal")
		return *v
	}

	tests := []struct {
		name   string
		mutate func(*VariantRegistry)
	}{
		{"missing id", func(r *VariantRegistry) { r.Variants[0].ID = "" }},
		{"duplicate id", func(r *VariantRegistry) { r.Variants = append(r.Variants, base()) }},
		{"no instruction", func(r *VariantRegistry) { r.Variants[0].SystemInstruction = "" }},
		{"no fields", func(r *VariantRegistry) { r.Variants[0].Fields = nil }},
		{"reserved field", func(r *VariantRegistry) { r.Variants[0].Fields[0].Name = "isHarmful" }},
		{"duplicate field", func(r *VariantRegistry) { r.Variants[0].Fields[1].Name = "insight" }},
		{"zero word cap", func(r *VariantRegistry) { r.Variants[0].Fields[0].MaxWords = 0 }},
		{"missing fallback", func(r *VariantRegistry) { r.Variants[0].Fields[0].Fallback = "" }},
		{"two suffix fields", func(r *VariantRegistry) {
			r.Variants[0].Fields[0].ClosingSentence = "One."
			r.Variants[0].Fields[1].ClosingSentence = "Two."
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := &VariantRegistry{Variants: []Variant{base()}}
			tt.mutate(reg)
			assert.NotEmpty(t, reg.Validate())
		})
	}
}

func TestOutputSchema(t *testing.T) {
	v, _ := Default().Get("portal")
	schema := v.OutputSchema()

	props := schema["properties"].(map[string]interface{})
	assert.Contains(t, props, "isHarmful")
	assert.Contains(t, props, "harmful")
	assert.Contains(t, props, "task")
	assert.Len(t, schema["anyOf"], 2)
}

func TestSaveAndLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "variants.json")
	require.NoError(t, SaveRegistry(path, Default()))

	loaded, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), loaded)
}

func TestLoadRegistry(t *testing.T) {
	t.Run("empty path uses built-in variants", func(t *testing.T) {
		reg, err := LoadRegistry("")
		require.NoError(t, err)
		assert.Len(t, reg.Variants, 2)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadRegistry(filepath.Join(t.TempDir(), "nope.json"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("invalid content rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"variants":[{"id":"x"}]}`), 0o600))
		_, err := LoadRegistry(path)
		assert.Error(t, err)
	})

	t.Run("malformed json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))
		_, err := LoadRegistry(path)
		assert.Error(t, err)
	})
}
