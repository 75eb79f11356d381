package entity

import (
	"net/url"
	"strings"
)

// Entity type wire values. These match the persisted entity_type /
// primary_silo columns and the classifier response contract.
const (
	TypeContacts  = "contacts"
	TypeInvestors = "investors"
	TypeOrgs      = "soccer_orgs"
)

// Match method wire values.
const (
	MethodEmailDirect    = "email_direct"
	MethodEmailJunction  = "email_junction"
	MethodDomainFallback = "domain_fallback"
)

// Match is a single resolved entity for an email address. Identity is
// (EntityType, EntityID); a resolution result never contains the same
// identity twice.
type Match struct {
	EntityType  string
	EntityID    string
	EntityName  string
	MatchMethod string
	Confidence  float64
}

// Snapshot is a point-in-time view of the entity tables and junctions,
// loaded from the store before a run. The index built from it does not
// observe writes made during the same run.
type Snapshot struct {
	Contacts      []Contact
	ContactEmails []ContactEmail
	InvestorLinks []InvestorLink
	OrgLinks      []OrgLink
	Investors     []Investor
	Orgs          []Org
}

type Contact struct {
	ID           string
	Name         string
	Email        string
	Organization string
}

// ContactEmail is a row of the contact_emails junction (multi-email
// support for a single contact).
type ContactEmail struct {
	ContactID string
	Email     string
}

// InvestorLink is an investor_contacts junction row joined to the
// investor's display name.
type InvestorLink struct {
	ContactID  string
	InvestorID string
	FirmName   string
}

// OrgLink is a soccer_org_contacts junction row joined to the org's
// display name.
type OrgLink struct {
	ContactID string
	OrgID     string
	OrgName   string
}

type Investor struct {
	ID       string
	FirmName string
	Website  string
}

type Org struct {
	ID      string
	OrgName string
	Website string
}

type contactRecord struct {
	ID           string
	Name         string
	Organization string
}

type linkedEntity struct {
	ID   string
	Name string
}

// Index holds the in-memory lookup tables for entity resolution.
// Built once per run from a Snapshot, read-only thereafter, and safe
// to share across goroutines.
type Index struct {
	emailToContact     map[string]contactRecord
	contactToInvestors map[string][]linkedEntity
	contactToOrgs      map[string][]linkedEntity
	domainToInvestor   map[string]linkedEntity
	domainToOrg        map[string]linkedEntity
}

// BuildIndex builds the lookup tables from a snapshot. The snapshot is
// not mutated. Emails are lower-cased and trimmed; empty emails are
// skipped. A contact's own email record wins over a junction-table
// email for the same address (first writer wins).
func BuildIndex(snap Snapshot) *Index {
	idx := &Index{
		emailToContact:     make(map[string]contactRecord),
		contactToInvestors: make(map[string][]linkedEntity),
		contactToOrgs:      make(map[string][]linkedEntity),
		domainToInvestor:   make(map[string]linkedEntity),
		domainToOrg:        make(map[string]linkedEntity),
	}

	byID := make(map[string]contactRecord, len(snap.Contacts))
	for _, c := range snap.Contacts {
		rec := contactRecord{ID: c.ID, Name: c.Name, Organization: c.Organization}
		byID[c.ID] = rec
		email := NormalizeEmail(c.Email)
		if email == "" {
			continue
		}
		if _, ok := idx.emailToContact[email]; !ok {
			idx.emailToContact[email] = rec
		}
	}

	for _, ce := range snap.ContactEmails {
		email := NormalizeEmail(ce.Email)
		if email == "" {
			continue
		}
		if _, ok := idx.emailToContact[email]; ok {
			continue
		}
		rec, ok := byID[ce.ContactID]
		if !ok {
			continue
		}
		idx.emailToContact[email] = rec
	}

	for _, link := range snap.InvestorLinks {
		idx.contactToInvestors[link.ContactID] = append(idx.contactToInvestors[link.ContactID],
			linkedEntity{ID: link.InvestorID, Name: link.FirmName})
	}
	for _, link := range snap.OrgLinks {
		idx.contactToOrgs[link.ContactID] = append(idx.contactToOrgs[link.ContactID],
			linkedEntity{ID: link.OrgID, Name: link.OrgName})
	}

	for _, inv := range snap.Investors {
		domain := extractDomain(inv.Website)
		if domain == "" {
			continue
		}
		if _, ok := idx.domainToInvestor[domain]; !ok {
			idx.domainToInvestor[domain] = linkedEntity{ID: inv.ID, Name: inv.FirmName}
		}
	}
	for _, org := range snap.Orgs {
		domain := extractDomain(org.Website)
		if domain == "" {
			continue
		}
		if _, ok := idx.domainToOrg[domain]; !ok {
			idx.domainToOrg[domain] = linkedEntity{ID: org.ID, Name: org.OrgName}
		}
	}

	return idx
}

// Size returns table sizes for progress logging.
func (idx *Index) Size() (emails, investorLinks, orgLinks, investorDomains, orgDomains int) {
	for _, v := range idx.contactToInvestors {
		investorLinks += len(v)
	}
	for _, v := range idx.contactToOrgs {
		orgLinks += len(v)
	}
	return len(idx.emailToContact), investorLinks, orgLinks, len(idx.domainToInvestor), len(idx.domainToOrg)
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// extractDomain pulls the hostname out of a website string, stripping a
// leading www. Malformed URLs yield "" (no signal, not an error).
func extractDomain(website string) string {
	s := strings.ToLower(strings.TrimSpace(website))
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, "http") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	return host
}

// Consumer mail providers carry no entity signal and are excluded from
// domain fallback.
var freeEmailDomains = map[string]struct{}{
	"gmail.com":      {},
	"yahoo.com":      {},
	"outlook.com":    {},
	"hotmail.com":    {},
	"aol.com":        {},
	"icloud.com":     {},
	"me.com":         {},
	"live.com":       {},
	"msn.com":        {},
	"protonmail.com": {},
	"mail.com":       {},
	"comcast.net":    {},
	"verizon.net":    {},
}

// emailDomain extracts the domain of an email address, or "" when the
// address has no @ or the domain is a consumer mail provider.
func emailDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) < 2 {
		return ""
	}
	domain := strings.ToLower(strings.TrimSpace(parts[1]))
	if _, free := freeEmailDomains[domain]; free {
		return ""
	}
	return domain
}
