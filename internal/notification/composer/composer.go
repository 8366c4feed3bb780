// Package composer renders notification subjects and bodies from template keys and meta.
package composer

import (
	"encoding/json"
	"fmt"
	"strings"

	"clinic-workers/internal/models"
)

// Message is a rendered notification.
type Message struct {
	Subject string
	Body    string
}

// Compose never fails. Missing meta fields render as empty strings and
// unknown template keys fall back to a JSON dump of meta.
func Compose(templateKey string, meta map[string]interface{}) Message {
	switch templateKey {
	case models.TemplateEventConfirmed:
		return Message{
			Subject: fmt.Sprintf("Appointment Confirmed: %s %s", str(meta, "date"), str(meta, "time")),
			Body: fmt.Sprintf("Hi,\n\nYour appointment (%s) is CONFIRMED.\nWith: %s\nDate: %s\nTime: %s\n\nThank you.\n",
				str(meta, "eventCode"), str(meta, "counterpartyName"), str(meta, "date"), str(meta, "time")),
		}
	case models.TemplateEventCanceled:
		return Message{
			Subject: "Appointment Canceled: " + str(meta, "eventCode"),
			Body: fmt.Sprintf("Hi,\n\nYour appointment (%s) has been CANCELED.\nIf this is unexpected, please contact reception.\n\nThank you.\n",
				str(meta, "eventCode")),
		}
	case models.TemplateEventReminder24h:
		return Message{
			Subject: "Reminder: Appointment in 24 hours",
			Body: fmt.Sprintf("Hi,\n\nThis is a reminder for your appointment (%s) in ~24 hours.\nWith: %s\nDate: %s\nTime: %s\n\nSee you soon!\n",
				str(meta, "eventCode"), str(meta, "counterpartyName"), str(meta, "date"), str(meta, "time")),
		}
	case models.TemplateDailyRundown:
		return Message{
			Subject: "Today's Schedule Rundown",
			Body:    rundownBody(meta),
		}
	default:
		return Message{Subject: templateKey, Body: dump(meta)}
	}
}

func rundownBody(meta map[string]interface{}) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Good morning,\n\nHere is your schedule for %s.\n", str(meta, "date"))

	lines := make([]string, 0)
	for _, item := range items(meta["items"]) {
		lines = append(lines, fmt.Sprintf("• %s — %s (%s)", str(item, "time"), str(item, "recipientCode"), str(item, "eventCode")))
	}
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n")
	return b.String()
}

// items accepts both the in-process and the JSON-decoded shape of the list.
func items(v interface{}) []map[string]interface{} {
	switch list := v.(type) {
	case []map[string]interface{}:
		return list
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(list))
		for _, e := range list {
			if m, ok := e.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func str(meta map[string]interface{}, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func dump(meta map[string]interface{}) string {
	if meta == nil {
		meta = map[string]interface{}{}
	}
	out, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", meta)
	}
	return string(out)
}
