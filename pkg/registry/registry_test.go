package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Lookup(t *testing.T) {
	reg := Default()

	for _, key := range []string{"EVENT_CONFIRMED", "EVENT_CANCELED", "EVENT_REMINDER_24H", "DAILY_RUNDOWN"} {
		tpl, ok := reg.Lookup(key)
		require.True(t, ok, key)
		assert.NotEmpty(t, tpl.MetaSchema)
	}

	_, ok := reg.Lookup("NOPE")
	assert.False(t, ok)
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"version": "2",
		"templates": [{"key": "CUSTOM", "recipientKinds": ["Staff"], "metaSchema": {"type": "object"}}]
	}`), 0o600))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, "2", reg.Version)

	tpl, ok := reg.Lookup("CUSTOM")
	require.True(t, ok)
	assert.Equal(t, []string{"Staff"}, tpl.RecipientKinds)
}

func TestLoadOrDefault(t *testing.T) {
	reg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), reg)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = LoadOrDefault(bad)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default().Validate())

	tests := []struct {
		name    string
		reg     *TemplateRegistry
		wantErr string
	}{
		{"empty", &TemplateRegistry{}, "no templates"},
		{"duplicate key", &TemplateRegistry{Templates: []Template{
			{Key: "A", RecipientKinds: []string{"Staff"}},
			{Key: "A", RecipientKinds: []string{"Staff"}},
		}}, "duplicate template key"},
		{"unknown kind", &TemplateRegistry{Templates: []Template{
			{Key: "A", RecipientKinds: []string{"Vendor"}},
		}}, "unknown recipient kind"},
		{"bad schema", &TemplateRegistry{Templates: []Template{
			{Key: "A", RecipientKinds: []string{"Patient"}, MetaSchema: map[string]interface{}{"type": 42}},
		}}, "invalid metaSchema"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorContains(t, tt.reg.Validate(), tt.wantErr)
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "templates.json")
	require.NoError(t, Save(Default(), path))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Len(t, reg.Templates, 4)
	require.NoError(t, reg.Validate())
}
