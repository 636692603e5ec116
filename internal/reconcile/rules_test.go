package reconcile

import (
	"strings"
	"testing"
	"time"

	"github.com/ramblersclub/membership-system/internal/model"
)

func dateMillis(year int, month time.Month, day int) int64 {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).UnixMilli()
}

func TestApplyField_ChangedDateUpdatesWithAuditMessage(t *testing.T) {
	d := FieldDescriptor{Field: "membershipExpiryDate", Type: TypeDate, Rule: RuleChanged, DateFormat: "dd/MM/yy"}

	member := &model.Member{MembershipExpiryDate: dateMillis(2025, time.July, 15)}
	rec := model.ImportRecord{MembershipExpiryDate: "15/07/26"}

	var audit model.UpdateAudit
	ApplyField(d, member, rec, &audit)

	if member.MembershipExpiryDate != dateMillis(2026, time.July, 15) {
		t.Fatalf("expiry = %d, want 15 Jul 2026", member.MembershipExpiryDate)
	}
	if audit.FieldsChanged != 1 {
		t.Fatalf("fieldsChanged = %d, want 1", audit.FieldsChanged)
	}
	want := "membershipExpiryDate: 15-Jul-2025 updated to 15-Jul-2026"
	if len(audit.ChangeMessages) != 1 || audit.ChangeMessages[0] != want {
		t.Fatalf("messages = %v, want [%q]", audit.ChangeMessages, want)
	}
}

func TestApplyField_ChangedIgnoresDerivedOnlyDifference(t *testing.T) {
	// The import row supplies no raw value; the derived fallback differs
	// from the stored value, but CHANGED must not write it.
	d := FieldDescriptor{Field: "displayName", Type: TypeString, Rule: RuleChanged, SourceDerived: "fullName"}

	member := &model.Member{DisplayName: "Old Name"}
	rec := model.ImportRecord{FirstName: "New", LastName: "Name"}

	var audit model.UpdateAudit
	ApplyField(d, member, rec, &audit)

	if member.DisplayName != "Old Name" {
		t.Fatalf("displayName overwritten from derived fallback: %q", member.DisplayName)
	}
	if audit.FieldsChanged != 0 {
		t.Fatalf("fieldsChanged = %d, want 0", audit.FieldsChanged)
	}
	if audit.FieldsSkipped != 1 {
		t.Fatalf("fieldsSkipped = %d, want 1", audit.FieldsSkipped)
	}
	if len(audit.ChangeMessages) != 1 || !strings.Contains(audit.ChangeMessages[0], "not overwritten with") {
		t.Fatalf("messages = %v, want one not-overwritten message", audit.ChangeMessages)
	}
}

func TestApplyField_TransitionToTrueIsOneWay(t *testing.T) {
	d := FieldDescriptor{Field: "marketingConsent", Type: TypeBoolean, Rule: RuleTransitionToTrue}

	member := &model.Member{MarketingConsent: true}
	rec := model.ImportRecord{MarketingConsent: "false"}

	var audit model.UpdateAudit
	ApplyField(d, member, rec, &audit)

	if !member.MarketingConsent {
		t.Fatalf("true -> false transition must never be written")
	}
	if audit.FieldsChanged != 0 {
		t.Fatalf("fieldsChanged = %d, want 0", audit.FieldsChanged)
	}

	// And false -> true latches.
	member = &model.Member{}
	rec = model.ImportRecord{MarketingConsent: "Yes"}
	audit = model.UpdateAudit{}
	ApplyField(d, member, rec, &audit)

	if !member.MarketingConsent {
		t.Fatalf("false -> true transition must be written")
	}
	if audit.FieldsChanged != 1 {
		t.Fatalf("fieldsChanged = %d, want 1", audit.FieldsChanged)
	}
}

func TestApplyField_NoOldValuePreservesExisting(t *testing.T) {
	d := FieldDescriptor{Field: "firstName", Type: TypeString, Rule: RuleNoOldValue}

	member := &model.Member{FirstName: "Margaret"}
	rec := model.ImportRecord{FirstName: "Peggy"}

	var audit model.UpdateAudit
	ApplyField(d, member, rec, &audit)

	if member.FirstName != "Margaret" {
		t.Fatalf("existing value overwritten: %q", member.FirstName)
	}
	if audit.FieldsSkipped != 1 {
		t.Fatalf("fieldsSkipped = %d, want 1", audit.FieldsSkipped)
	}

	// An empty field takes the new value.
	member = &model.Member{}
	audit = model.UpdateAudit{}
	ApplyField(d, member, rec, &audit)

	if member.FirstName != "Peggy" {
		t.Fatalf("empty field not filled: %q", member.FirstName)
	}
}

func TestApplyField_NotRevoked(t *testing.T) {
	d := FieldDescriptor{Field: "consentUpdatedAt", Type: TypeDate, Rule: RuleNotRevoked, DateFormat: "dd/MM/yy"}

	member := &model.Member{Revoked: true}
	rec := model.ImportRecord{ConsentUpdatedAt: "01/02/25"}

	var audit model.UpdateAudit
	ApplyField(d, member, rec, &audit)

	if member.ConsentUpdatedAt != 0 {
		t.Fatalf("revoked member updated: %d", member.ConsentUpdatedAt)
	}
	if audit.FieldsSkipped != 1 {
		t.Fatalf("fieldsSkipped = %d, want 1", audit.FieldsSkipped)
	}

	member = &model.Member{}
	audit = model.UpdateAudit{}
	ApplyField(d, member, rec, &audit)

	if member.ConsentUpdatedAt != dateMillis(2025, time.February, 1) {
		t.Fatalf("consentUpdatedAt = %d, want 1 Feb 2025", member.ConsentUpdatedAt)
	}
}

func TestApplyField_Idempotent(t *testing.T) {
	descriptors := DefaultDescriptors()

	member := &model.Member{}
	rec := model.ImportRecord{
		MembershipNumber:     "123",
		FirstName:            "Dave",
		LastName:             "Smith",
		Email:                "dave@example.com",
		Mobile:               "07700 900123",
		Postcode:             "GU27 1AA",
		MembershipExpiryDate: "15/07/2026",
		MarketingConsent:     "Y",
		ConsentUpdatedAt:     "15/07/25",
		JointWith:            "124",
	}

	var first model.UpdateAudit
	ApplyAll(descriptors, member, rec, &first)
	if first.FieldsChanged == 0 {
		t.Fatalf("first application changed nothing")
	}

	var second model.UpdateAudit
	ApplyAll(descriptors, member, rec, &second)
	if second.FieldsChanged != 0 {
		t.Fatalf("second application changed %d fields, want 0: %v", second.FieldsChanged, second.ChangeMessages)
	}
	if len(second.ChangeMessages) != 0 {
		t.Fatalf("second application produced messages: %v", second.ChangeMessages)
	}
}

func TestApplyField_AbsentValueIsNoUpdate(t *testing.T) {
	d := FieldDescriptor{Field: "postcode", Type: TypeString, Rule: RuleChanged}

	member := &model.Member{Postcode: "GU27 1AA"}

	var audit model.UpdateAudit
	ApplyField(d, member, model.ImportRecord{}, &audit)

	if member.Postcode != "GU27 1AA" {
		t.Fatalf("postcode cleared by absent value")
	}
	// Absent old-vs-none renders differ, so a skip message is recorded.
	if audit.FieldsChanged != 0 {
		t.Fatalf("fieldsChanged = %d, want 0", audit.FieldsChanged)
	}
}

func TestValidateDescriptors(t *testing.T) {
	if err := ValidateDescriptors(DefaultDescriptors()); err != nil {
		t.Fatalf("default table invalid: %v", err)
	}

	bad := []FieldDescriptor{{Field: "noSuchField", Type: TypeString}}
	if err := ValidateDescriptors(bad); err == nil {
		t.Fatalf("expected error for unknown field")
	}

	bad = []FieldDescriptor{{Field: "membershipExpiryDate", Type: TypeDate}}
	if err := ValidateDescriptors(bad); err == nil {
		t.Fatalf("expected error for missing dateFormat")
	}

	bad = []FieldDescriptor{{Field: "email", Type: TypeString, MemberDerived: "nope"}}
	if err := ValidateDescriptors(bad); err == nil {
		t.Fatalf("expected error for unknown derived function")
	}
}

func TestCoerceAndDisplay(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		typ     ValueType
		format  string
		display string
	}{
		{name: "date", value: "15/07/2026", typ: TypeDate, format: "dd/MM/yyyy", display: "15-Jul-2026"},
		{name: "two digit year", value: "15/07/26", typ: TypeDate, format: "dd/MM/yy", display: "15-Jul-2026"},
		{name: "bad date", value: "garbage", typ: TypeDate, format: "dd/MM/yyyy", display: "(none)"},
		{name: "bool yes", value: "Yes", typ: TypeBoolean, display: "true"},
		{name: "bool no", value: "no", typ: TypeBoolean, display: "(none)"},
		{name: "string", value: "GU27 1AA", typ: TypeString, display: "GU27 1AA"},
		{name: "empty string", value: "", typ: TypeString, display: "(none)"},
		{name: "nil", value: nil, typ: TypeString, display: "(none)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := displayValue(coerce(tt.value, tt.typ, tt.format), tt.typ)
			if got != tt.display {
				t.Fatalf("display = %q, want %q", got, tt.display)
			}
		})
	}
}
