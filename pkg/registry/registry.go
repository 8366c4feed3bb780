// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

func LoadRegistry(path string) (*TemplateRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg TemplateRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse template registry %s: %w", path, err)
	}
	return &reg, nil
}

// Save writes reg as indented JSON, creating the parent directory.
func Save(reg *TemplateRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

// LoadOrDefault loads path when set and readable, otherwise the built-in registry.
func LoadOrDefault(path string) (*TemplateRegistry, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return LoadRegistry(path)
}

func eventSchema(required ...string) map[string]interface{} {
	props := map[string]interface{}{
		"eventCode":        map[string]interface{}{"type": "string", "pattern": "^[A-Z]+-[0-9]+$"},
		"counterpartyCode": map[string]interface{}{"type": "string"},
		"counterpartyName": map[string]interface{}{"type": "string"},
		"date":             map[string]interface{}{"type": "string"},
		"time":             map[string]interface{}{"type": "string"},
	}
	req := make([]interface{}, len(required))
	for i, r := range required {
		req[i] = r
	}
	return map[string]interface{}{"type": "object", "properties": props, "required": req}
}

// Default is the registry compiled into the binary.
func Default() *TemplateRegistry {
	return &TemplateRegistry{
		Version: "1",
		Templates: []Template{
			{
				Key:            "EVENT_CONFIRMED",
				Description:    "Appointment confirmation sent to the patient",
				RecipientKinds: []string{"Patient"},
				MetaSchema:     eventSchema("eventCode", "counterpartyName", "date", "time"),
			},
			{
				Key:            "EVENT_CANCELED",
				Description:    "Appointment cancellation sent to the patient",
				RecipientKinds: []string{"Patient"},
				MetaSchema:     eventSchema("eventCode"),
			},
			{
				Key:            "EVENT_REMINDER_24H",
				Description:    "Reminder sent a day before the appointment",
				RecipientKinds: []string{"Patient"},
				MetaSchema:     eventSchema("eventCode", "counterpartyName", "date", "time"),
			},
			{
				Key:            "DAILY_RUNDOWN",
				Description:    "Morning schedule sent to each staff member",
				RecipientKinds: []string{"Staff"},
				MetaSchema: map[string]interface{}{
					"type":     "object",
					"required": []interface{}{"date", "items"},
					"properties": map[string]interface{}{
						"date": map[string]interface{}{"type": "string"},
						"items": map[string]interface{}{
							"type": "array",
							"items": map[string]interface{}{
								"type":     "object",
								"required": []interface{}{"time", "recipientCode", "eventCode"},
							},
						},
					},
				},
			},
		},
	}
}
