// pkg/registry/schema.go
package registry

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// TemplateRegistry lists the notification templates a deployment knows about.
type TemplateRegistry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	Templates   []Template `json:"templates"`
}

type Template struct {
	Key            string                 `json:"key"`
	Description    string                 `json:"description"`
	RecipientKinds []string               `json:"recipientKinds"`
	MetaSchema     map[string]interface{} `json:"metaSchema"`
	Tags           []string               `json:"tags"`
}

// Lookup returns the template registered under key.
func (r *TemplateRegistry) Lookup(key string) (*Template, bool) {
	for i := range r.Templates {
		if r.Templates[i].Key == key {
			return &r.Templates[i], true
		}
	}
	return nil, false
}

// Validate checks keys are present and unique, recipient kinds are known and
// every meta schema compiles.
func (r *TemplateRegistry) Validate() error {
	if len(r.Templates) == 0 {
		return fmt.Errorf("registry contains no templates")
	}

	keys := make(map[string]bool)
	for _, tpl := range r.Templates {
		if tpl.Key == "" {
			return fmt.Errorf("template missing required field: key")
		}
		if keys[tpl.Key] {
			return fmt.Errorf("duplicate template key: %s", tpl.Key)
		}
		keys[tpl.Key] = true

		if len(tpl.RecipientKinds) == 0 {
			return fmt.Errorf("template %s has no recipientKinds", tpl.Key)
		}
		for _, k := range tpl.RecipientKinds {
			if k != "Patient" && k != "Staff" {
				return fmt.Errorf("template %s: unknown recipient kind %q", tpl.Key, k)
			}
		}

		if tpl.MetaSchema != nil {
			if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(tpl.MetaSchema)); err != nil {
				return fmt.Errorf("template %s: invalid metaSchema: %w", tpl.Key, err)
			}
		}
	}
	return nil
}
