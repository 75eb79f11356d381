package entity

// Resolver maps email addresses to known entities using the index's
// lookup tables, with a fixed confidence precedence:
//
//	email_direct    1.0  (contact's own email or junction email)
//	email_junction  0.9  (investors/orgs linked to that contact)
//	domain_fallback 0.6  (website domain match, only when no contact hit)
type Resolver struct {
	idx *Index
}

func NewResolver(idx *Index) *Resolver {
	return &Resolver{idx: idx}
}

type matchKey struct {
	entityType string
	entityID   string
}

// Resolve returns the entities matching an email address, deduplicated
// by (entity type, entity id) in insertion order. A direct contact hit
// suppresses domain fallback entirely, even when the contact has no
// linked investors or orgs.
func (r *Resolver) Resolve(email string) []Match {
	email = NormalizeEmail(email)

	var matches []Match
	seen := make(map[matchKey]struct{})
	add := func(m Match) {
		key := matchKey{m.EntityType, m.EntityID}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		matches = append(matches, m)
	}

	contact, direct := r.idx.emailToContact[email]
	if direct {
		add(Match{
			EntityType:  TypeContacts,
			EntityID:    contact.ID,
			EntityName:  contact.Name,
			MatchMethod: MethodEmailDirect,
			Confidence:  1.0,
		})

		for _, inv := range r.idx.contactToInvestors[contact.ID] {
			add(Match{
				EntityType:  TypeInvestors,
				EntityID:    inv.ID,
				EntityName:  inv.Name,
				MatchMethod: MethodEmailJunction,
				Confidence:  0.9,
			})
		}
		for _, org := range r.idx.contactToOrgs[contact.ID] {
			add(Match{
				EntityType:  TypeOrgs,
				EntityID:    org.ID,
				EntityName:  org.Name,
				MatchMethod: MethodEmailJunction,
				Confidence:  0.9,
			})
		}
		return matches
	}

	// Domain fallback only when there was no direct contact match.
	domain := emailDomain(email)
	if domain == "" {
		return matches
	}
	if inv, ok := r.idx.domainToInvestor[domain]; ok {
		add(Match{
			EntityType:  TypeInvestors,
			EntityID:    inv.ID,
			EntityName:  inv.Name,
			MatchMethod: MethodDomainFallback,
			Confidence:  0.6,
		})
	}
	if org, ok := r.idx.domainToOrg[domain]; ok {
		add(Match{
			EntityType:  TypeOrgs,
			EntityID:    org.ID,
			EntityName:  org.Name,
			MatchMethod: MethodDomainFallback,
			Confidence:  0.6,
		})
	}
	return matches
}

// ResolveMultiple resolves each address in input order and unions the
// results, deduplicating by identity across the whole batch (order of
// first appearance).
func (r *Resolver) ResolveMultiple(emails []string) []Match {
	var all []Match
	seen := make(map[matchKey]struct{})

	for _, email := range emails {
		for _, m := range r.Resolve(email) {
			key := matchKey{m.EntityType, m.EntityID}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			all = append(all, m)
		}
	}
	return all
}
