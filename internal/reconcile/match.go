package reconcile

import (
	"strconv"
	"strings"

	"github.com/ramblersclub/membership-system/internal/model"
	"github.com/ramblersclub/membership-system/internal/validation"
)

// MatchKind tags whether the resolver found an existing member or created one.
type MatchKind string

const (
	MatchFound   MatchKind = "found"
	MatchCreated MatchKind = "created"
)

// MatchedBy names the strategy that produced a found match.
type MatchedBy string

const (
	MatchedByMembershipNumber MatchedBy = "membershipNumber"
	MatchedByEmailAndLastName MatchedBy = "emailAndLastName"
	MatchedByMobileNumber     MatchedBy = "mobileNumber"
	MatchedByDisplayName      MatchedBy = "displayName"
)

// MatchResult is the outcome of resolving one import row.
type MatchResult struct {
	Kind      MatchKind
	Member    *model.Member
	MatchedBy MatchedBy
}

// Resolve finds the best-matching existing member for the import row, or
// synthesises a new one when nothing matches. Strategies run in fixed
// priority order and the first hit wins. Contact-gated strategies (mobile,
// free-text display name) run only when a contact is supplied.
//
// The returned pool includes any synthesised member, so callers processing a
// batch must thread it through: a later identical row then matches the
// member created for the earlier one instead of duplicating it.
func Resolve(rec model.ImportRecord, contact *model.Contact, pool []*model.Member) (MatchResult, []*model.Member) {
	if rec.MembershipNumber != "" {
		for _, m := range pool {
			if m.MembershipNumber == rec.MembershipNumber {
				return MatchResult{Kind: MatchFound, Member: m, MatchedBy: MatchedByMembershipNumber}, pool
			}
		}
	}

	if rec.Email != "" && rec.LastName != "" {
		for _, m := range pool {
			if m.Email != "" && m.LastName != "" &&
				strings.EqualFold(m.Email, rec.Email) && strings.EqualFold(m.LastName, rec.LastName) {
				return MatchResult{Kind: MatchFound, Member: m, MatchedBy: MatchedByEmailAndLastName}, pool
			}
		}
	}

	if contact != nil {
		if mobile := validation.NormalizeMobile(contact.Mobile); mobile != "" {
			for _, m := range pool {
				if validation.NormalizeMobile(m.Mobile) == mobile {
					return MatchResult{Kind: MatchFound, Member: m, MatchedBy: MatchedByMobileNumber}, pool
				}
			}
		}

		if name := normalizeDisplayName(contact.Name); name != "" {
			for _, m := range pool {
				if normalizeDisplayName(m.DisplayName) == name {
					return MatchResult{Kind: MatchFound, Member: m, MatchedBy: MatchedByDisplayName}, pool
				}
			}
		}
	}

	member := synthesizeMember(rec, contact, pool)
	pool = append(pool, member)

	return MatchResult{Kind: MatchCreated, Member: member}, pool
}

func synthesizeMember(rec model.ImportRecord, contact *model.Contact, pool []*model.Member) *model.Member {
	m := &model.Member{
		FirstName:        strings.TrimSpace(rec.FirstName),
		LastName:         strings.TrimSpace(rec.LastName),
		Email:            strings.TrimSpace(rec.Email),
		MembershipNumber: strings.TrimSpace(rec.MembershipNumber),
		GroupMember:      true,
		SocialMember:     true,
	}

	// The contact path may carry no name at all.
	if contact != nil && m.FirstName == "" && m.LastName == "" {
		m.FirstName = "Unknown"
		m.LastName = "Unknown"
	}

	m.UserName = uniqueValue(userNameBase(m), "", pool, func(c *model.Member) string { return c.UserName })
	m.DisplayName = uniqueValue(displayNameBase(m), " ", pool, func(c *model.Member) string { return c.DisplayName })

	return m
}

func userNameBase(m *model.Member) string {
	first := strings.ToLower(strings.TrimSpace(m.FirstName))
	last := strings.ToLower(strings.TrimSpace(m.LastName))

	switch {
	case first != "" && last != "":
		return first + "." + last
	case first != "":
		return first
	case last != "":
		return last
	}

	if local, _, ok := strings.Cut(m.Email, "@"); ok && local != "" {
		return strings.ToLower(local)
	}

	return "member"
}

func displayNameBase(m *model.Member) string {
	name := strings.TrimSpace(strings.TrimSpace(m.FirstName) + " " + strings.TrimSpace(m.LastName))
	if name != "" {
		return name
	}

	if local, _, ok := strings.Cut(m.Email, "@"); ok && local != "" {
		return local
	}

	return "Member"
}

// uniqueValue appends the lowest non-negative integer suffix (none for zero)
// that makes the value unused among the candidates.
func uniqueValue(base, separator string, pool []*model.Member, valueOf func(*model.Member) string) string {
	for suffix := 0; ; suffix++ {
		candidate := base
		if suffix > 0 {
			candidate = base + separator + strconv.Itoa(suffix)
		}

		taken := false
		for _, m := range pool {
			if strings.EqualFold(valueOf(m), candidate) {
				taken = true
				break
			}
		}

		if !taken {
			return candidate
		}
	}
}

// normalizeDisplayName canonicalises a free-text name for comparison:
// lowercased with runs of whitespace collapsed.
func normalizeDisplayName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
