package reconcile

import "github.com/ramblersclub/membership-system/internal/model"

// memberField pairs the getter and setter for one reconcilable member field.
// Explicit accessor tables keep the rule engine free of reflection and make
// the reconcilable field set a compile-checked list.
type memberField struct {
	get func(*model.Member) any
	set func(*model.Member, any)
}

var memberFields = map[string]memberField{
	"membershipNumber": {
		get: func(m *model.Member) any { return m.MembershipNumber },
		set: func(m *model.Member, v any) { m.MembershipNumber = asString(v) },
	},
	"firstName": {
		get: func(m *model.Member) any { return m.FirstName },
		set: func(m *model.Member, v any) { m.FirstName = asString(v) },
	},
	"lastName": {
		get: func(m *model.Member) any { return m.LastName },
		set: func(m *model.Member, v any) { m.LastName = asString(v) },
	},
	"displayName": {
		get: func(m *model.Member) any { return m.DisplayName },
		set: func(m *model.Member, v any) { m.DisplayName = asString(v) },
	},
	"email": {
		get: func(m *model.Member) any { return m.Email },
		set: func(m *model.Member, v any) { m.Email = asString(v) },
	},
	"mobile": {
		get: func(m *model.Member) any { return m.Mobile },
		set: func(m *model.Member, v any) { m.Mobile = asString(v) },
	},
	"postcode": {
		get: func(m *model.Member) any { return m.Postcode },
		set: func(m *model.Member, v any) { m.Postcode = asString(v) },
	},
	"membershipExpiryDate": {
		get: func(m *model.Member) any { return m.MembershipExpiryDate },
		set: func(m *model.Member, v any) { m.MembershipExpiryDate = asMillis(v) },
	},
	"marketingConsent": {
		get: func(m *model.Member) any { return m.MarketingConsent },
		set: func(m *model.Member, v any) { m.MarketingConsent = asBool(v) },
	},
	"consentUpdatedAt": {
		get: func(m *model.Member) any { return m.ConsentUpdatedAt },
		set: func(m *model.Member, v any) { m.ConsentUpdatedAt = asMillis(v) },
	},
	"jointWith": {
		get: func(m *model.Member) any { return m.JointWith },
		set: func(m *model.Member, v any) { m.JointWith = asString(v) },
	},
}

var importFields = map[string]func(model.ImportRecord) string{
	"membershipNumber":     func(r model.ImportRecord) string { return r.MembershipNumber },
	"firstName":            func(r model.ImportRecord) string { return r.FirstName },
	"lastName":             func(r model.ImportRecord) string { return r.LastName },
	"displayName":          func(model.ImportRecord) string { return "" },
	"email":                func(r model.ImportRecord) string { return r.Email },
	"mobile":               func(r model.ImportRecord) string { return r.Mobile },
	"postcode":             func(r model.ImportRecord) string { return r.Postcode },
	"membershipExpiryDate": func(r model.ImportRecord) string { return r.MembershipExpiryDate },
	"marketingConsent":     func(r model.ImportRecord) string { return r.MarketingConsent },
	"consentUpdatedAt":     func(r model.ImportRecord) string { return r.ConsentUpdatedAt },
	"jointWith":            func(r model.ImportRecord) string { return r.JointWith },
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asMillis(v any) int64 {
	n, _ := v.(int64)
	return n
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}
