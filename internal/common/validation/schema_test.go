package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAgainstSchema(t *testing.T) {
	schema := map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"eventCode", "date"},
		"properties": map[string]interface{}{
			"eventCode": map[string]interface{}{"type": "string", "pattern": "^[A-Z]+-[0-9]+$"},
			"date":      map[string]interface{}{"type": "string"},
		},
	}

	tests := []struct {
		name       string
		doc        map[string]interface{}
		wantValid  bool
		wantFields []string
	}{
		{
			name:      "valid",
			doc:       map[string]interface{}{"eventCode": "EV-0042", "date": "2026-03-02"},
			wantValid: true,
		},
		{
			name:       "missing required",
			doc:        map[string]interface{}{"eventCode": "EV-0042"},
			wantFields: []string{"(root)"},
		},
		{
			name:       "pattern mismatch",
			doc:        map[string]interface{}{"eventCode": "ev42", "date": "2026-03-02"},
			wantFields: []string{"eventCode"},
		},
		{
			name:       "nil document",
			doc:        nil,
			wantFields: []string{"(root)", "(root)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ValidateAgainstSchema(tt.doc, schema)
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, res.Valid)

			fields := make([]string, 0, len(res.Errors))
			for _, e := range res.Errors {
				fields = append(fields, e.Field)
			}
			if tt.wantValid {
				assert.Empty(t, fields)
			} else {
				assert.ElementsMatch(t, tt.wantFields, fields)
				assert.Len(t, res.Messages(), len(tt.wantFields))
			}
		})
	}
}

func TestValidateAgainstSchema_EmptySchema(t *testing.T) {
	res, err := ValidateAgainstSchema(map[string]interface{}{"anything": 1}, nil)
	require.NoError(t, err)
	assert.True(t, res.Valid)
}
