package sequence

import (
	"fmt"
	"strings"
)

// Kind describes a family of business codes and how its scopes are named.
type Kind struct {
	Name   string
	Prefix string
	Width  int
	// Owned kinds keep one counter per owner, e.g. treatment plans per patient.
	Owned bool
}

var (
	KindPatient       = Kind{Name: "patient", Prefix: "P-", Width: 4}
	KindTreatmentPlan = Kind{Name: "tplan", Prefix: "TP-", Width: 3, Owned: true}
	KindClinicEvent   = Kind{Name: "clinicEvent", Prefix: "EV-", Width: 4}
	KindInquiry       = Kind{Name: "inquiry", Prefix: "INQ-", Width: 4}
)

var kinds = map[string]Kind{
	KindPatient.Name:       KindPatient,
	KindTreatmentPlan.Name: KindTreatmentPlan,
	KindClinicEvent.Name:   KindClinicEvent,
	KindInquiry.Name:       KindInquiry,
}

func LookupKind(name string) (Kind, bool) {
	k, ok := kinds[name]
	return k, ok
}

// Scope returns the counter scope for owner. Owner is ignored for unowned kinds.
func (k Kind) Scope(owner string) (string, error) {
	if !k.Owned {
		return k.Name, nil
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "", fmt.Errorf("kind %s requires an owner", k.Name)
	}
	return k.Name + ":" + owner, nil
}

func (k Kind) Format(n int64) string {
	return Format(n, k.Prefix, k.Width)
}

// Format renders n zero-padded to width behind prefix, e.g. Format(7, "TP-", 3) == "TP-007".
func Format(n int64, prefix string, width int) string {
	return fmt.Sprintf("%s%0*d", prefix, width, n)
}

// ParseScope maps a scope back to its kind and owner.
func ParseScope(scope string) (Kind, string, bool) {
	name, owner, _ := strings.Cut(scope, ":")
	k, ok := kinds[name]
	if !ok || k.Owned != (owner != "") {
		return Kind{}, "", false
	}
	return k, owner, true
}
