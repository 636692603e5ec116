// Package reconcile implements the member reconciliation engine: resolving
// imported registry rows against existing members and applying declarative
// per-field update rules with an audit trail.
package reconcile

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ramblersclub/membership-system/internal/model"
)

// ValueType describes how a field value is coerced and formatted.
type ValueType string

const (
	TypeString  ValueType = "string"
	TypeDate    ValueType = "date"
	TypeBoolean ValueType = "boolean"
)

// WriteRule is the declarative policy deciding whether an imported value may
// overwrite an existing field.
type WriteRule string

const (
	// RuleAlways writes whenever the new value is present and differs.
	RuleAlways WriteRule = ""
	// RuleChanged writes only when the values differ and the import row
	// supplied a raw value itself, not a derived fallback.
	RuleChanged WriteRule = "changed"
	// RuleNoOldValue writes only into an empty field.
	RuleNoOldValue WriteRule = "no-old-value"
	// RuleTransitionToTrue latches false to true and never back.
	RuleTransitionToTrue WriteRule = "transition-to-true"
	// RuleNotRevoked writes a differing value unless the member is revoked.
	RuleNotRevoked WriteRule = "not-revoked"
)

// FieldDescriptor is one row of the update-rule table. The table is pure
// data: derived values are referenced by name and resolved through the
// registry below, so a table can be loaded from YAML.
type FieldDescriptor struct {
	Field         string    `yaml:"field"`
	Type          ValueType `yaml:"type"`
	Rule          WriteRule `yaml:"rule,omitempty"`
	DateFormat    string    `yaml:"dateFormat,omitempty"`
	MemberDerived string    `yaml:"memberDerived,omitempty"`
	SourceDerived string    `yaml:"sourceDerived,omitempty"`
}

// MemberDerivedFunc computes a fallback value from the existing member.
type MemberDerivedFunc func(*model.Member) any

// SourceDerivedFunc computes a fallback value from the import row.
type SourceDerivedFunc func(model.ImportRecord) any

var memberDerived = map[string]MemberDerivedFunc{
	"currentExpiryDate": func(m *model.Member) any { return m.MembershipExpiryDate },
	"currentDisplayName": func(m *model.Member) any {
		return strings.TrimSpace(m.FirstName + " " + m.LastName)
	},
}

var sourceDerived = map[string]SourceDerivedFunc{
	"fullName": func(rec model.ImportRecord) any {
		return strings.TrimSpace(strings.TrimSpace(rec.FirstName) + " " + strings.TrimSpace(rec.LastName))
	},
	"emailLocalPart": func(rec model.ImportRecord) any {
		local, _, _ := strings.Cut(rec.Email, "@")
		return local
	},
}

// DefaultDescriptors returns the update-rule table for the membership
// registry export format. Expiry dates carry four-digit years, consent
// timestamps two-digit years.
func DefaultDescriptors() []FieldDescriptor {
	return []FieldDescriptor{
		{Field: "membershipNumber", Type: TypeString, Rule: RuleChanged},
		{Field: "firstName", Type: TypeString, Rule: RuleNoOldValue},
		{Field: "lastName", Type: TypeString, Rule: RuleNoOldValue},
		{Field: "displayName", Type: TypeString, Rule: RuleNoOldValue, SourceDerived: "fullName"},
		{Field: "email", Type: TypeString, Rule: RuleChanged},
		{Field: "mobile", Type: TypeString, Rule: RuleChanged},
		{Field: "postcode", Type: TypeString, Rule: RuleChanged},
		{Field: "membershipExpiryDate", Type: TypeDate, Rule: RuleChanged, DateFormat: "dd/MM/yyyy"},
		{Field: "marketingConsent", Type: TypeBoolean, Rule: RuleTransitionToTrue},
		{Field: "consentUpdatedAt", Type: TypeDate, Rule: RuleNotRevoked, DateFormat: "dd/MM/yy"},
		{Field: "jointWith", Type: TypeString},
	}
}

// LoadDescriptors reads a descriptor table from a YAML file and validates it
// against the field accessor tables and the derived-value registry.
func LoadDescriptors(path string) ([]FieldDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor file: %w", err)
	}

	var descriptors []FieldDescriptor
	if err := yaml.Unmarshal(data, &descriptors); err != nil {
		return nil, fmt.Errorf("parse descriptor file: %w", err)
	}

	if err := ValidateDescriptors(descriptors); err != nil {
		return nil, err
	}

	return descriptors, nil
}

// ValidateDescriptors checks that every descriptor references a known field,
// a known derived function and carries a date format when one is needed.
func ValidateDescriptors(descriptors []FieldDescriptor) error {
	for _, d := range descriptors {
		if _, ok := memberFields[d.Field]; !ok {
			return fmt.Errorf("descriptor %q: unknown member field", d.Field)
		}
		if _, ok := importFields[d.Field]; !ok {
			return fmt.Errorf("descriptor %q: unknown import field", d.Field)
		}
		switch d.Type {
		case TypeString, TypeBoolean:
		case TypeDate:
			if d.DateFormat == "" {
				return fmt.Errorf("descriptor %q: date type requires dateFormat", d.Field)
			}
		default:
			return fmt.Errorf("descriptor %q: unknown type %q", d.Field, d.Type)
		}
		switch d.Rule {
		case RuleAlways, RuleChanged, RuleNoOldValue, RuleTransitionToTrue, RuleNotRevoked:
		default:
			return fmt.Errorf("descriptor %q: unknown rule %q", d.Field, d.Rule)
		}
		if d.MemberDerived != "" {
			if _, ok := memberDerived[d.MemberDerived]; !ok {
				return fmt.Errorf("descriptor %q: unknown memberDerived %q", d.Field, d.MemberDerived)
			}
		}
		if d.SourceDerived != "" {
			if _, ok := sourceDerived[d.SourceDerived]; !ok {
				return fmt.Errorf("descriptor %q: unknown sourceDerived %q", d.Field, d.SourceDerived)
			}
		}
	}
	return nil
}
