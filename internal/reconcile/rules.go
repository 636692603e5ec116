package reconcile

import (
	"fmt"
	"strings"

	"github.com/ramblersclub/membership-system/internal/model"
)

// ApplyField evaluates one field descriptor against an existing member and an
// import row, mutating the member and the audit in place.
//
// The new value is the row's raw value for the field; when the row supplies
// nothing, the descriptor's derived fallbacks are consulted (member-derived
// first). Old and new values are compared through their display rendering,
// so a reparsed-but-identical date does not count as a difference.
func ApplyField(d FieldDescriptor, existing *model.Member, imported model.ImportRecord, audit *model.UpdateAudit) {
	importGet, ok := importFields[d.Field]
	field, found := memberFields[d.Field]
	if !ok || !found {
		return
	}

	raw := strings.TrimSpace(importGet(imported))
	rawSupplied := raw != ""

	var newValue any
	switch {
	case rawSupplied:
		newValue = raw
	case d.MemberDerived != "":
		if fn := memberDerived[d.MemberDerived]; fn != nil {
			newValue = fn(existing)
		}
	case d.SourceDerived != "":
		if fn := sourceDerived[d.SourceDerived]; fn != nil {
			newValue = fn(imported)
		}
	}

	coerced := coerce(newValue, d.Type, d.DateFormat)
	oldValue := field.get(existing)

	oldDisplay := displayValue(oldValue, d.Type)
	newDisplay := displayValue(coerced, d.Type)
	dataDifferent := oldDisplay != newDisplay

	var performUpdate bool
	switch d.Rule {
	case RuleChanged:
		performUpdate = dataDifferent && rawSupplied
	case RuleNoOldValue:
		performUpdate = !isEmptyValue(coerced) && isEmptyValue(oldValue)
	case RuleTransitionToTrue:
		performUpdate = truthy(coerced) && !truthy(oldValue)
	case RuleNotRevoked:
		performUpdate = !isEmptyValue(coerced) && dataDifferent && !existing.Revoked
	default:
		performUpdate = !isEmptyValue(coerced) && dataDifferent
	}

	if performUpdate {
		field.set(existing, coerced)
		audit.FieldsChanged++
	} else if dataDifferent {
		audit.FieldsSkipped++
	}

	if performUpdate || dataDifferent {
		qualifier := "not overwritten with"
		if performUpdate {
			qualifier = "updated to"
		}
		audit.ChangeMessages = append(audit.ChangeMessages,
			fmt.Sprintf("%s: %s %s %s", d.Field, oldDisplay, qualifier, newDisplay))
	}
}

// ApplyAll runs every descriptor in table order against the member. There is
// no short-circuiting across fields.
func ApplyAll(descriptors []FieldDescriptor, existing *model.Member, imported model.ImportRecord, audit *model.UpdateAudit) {
	for _, d := range descriptors {
		ApplyField(d, existing, imported, audit)
	}
}
