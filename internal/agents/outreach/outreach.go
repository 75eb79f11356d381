// Package outreach surfaces soccer communities worth contacting.
package outreach

import (
	"context"
	"fmt"

	"github.com/makerelephant/mim-platform/internal/store"
)

const agentName = "outreach_tracker"

// Tracker finds communities still marked "Not Contacted" that look
// valuable: a large player base, or an existing merch storefront.
type Tracker struct {
	store      *store.Store
	minPlayers int
}

func New(st *store.Store, minPlayers int) *Tracker {
	if minPlayers <= 0 {
		minPlayers = 300
	}
	return &Tracker{store: st, minPlayers: minPlayers}
}

// Run creates an outreach task per qualifying community and moves it
// to "Task Created" so later runs don't duplicate the work. Player
// count qualifies at high priority; a merch link alone is medium.
func (tr *Tracker) Run(ctx context.Context) (processed, updated int, err error) {
	orgs, err := tr.store.ListCommunities()
	if err != nil {
		return 0, 0, err
	}

	for _, org := range orgs {
		if ctx.Err() != nil {
			return processed, updated, ctx.Err()
		}
		processed++

		if org.OutreachStatus != "Not Contacted" {
			continue
		}

		bigClub := org.Players >= tr.minPlayers
		if !bigClub && !org.HasMerchLink {
			continue
		}

		priority := "medium"
		reason := "existing merch storefront"
		if bigClub {
			priority = "high"
			reason = fmt.Sprintf("%d players", org.Players)
		}

		err := tr.store.InsertTask(store.Task{
			Title:             fmt.Sprintf("Reach out to %s", org.OrgName),
			Summary:           fmt.Sprintf("High-value community (%s), not yet contacted", reason),
			RecommendedAction: recommendedAction(org),
			Priority:          priority,
			Source:            agentName,
			EntityType:        "soccer_orgs",
			EntityID:          org.ID,
		})
		if err != nil {
			return processed, updated, err
		}

		if err := tr.store.SetOutreachStatus(org.ID, "Task Created"); err != nil {
			return processed, updated, err
		}

		err = tr.store.LogActivity(store.Activity{
			AgentName:  agentName,
			ActionType: "outreach_queued",
			EntityType: "soccer_orgs",
			EntityID:   org.ID,
			Summary:    fmt.Sprintf("Queued outreach to %s (%s)", org.OrgName, reason),
			RawData: map[string]any{
				"players":        org.Players,
				"has_merch_link": org.HasMerchLink,
				"priority":       priority,
			},
		})
		if err != nil {
			return processed, updated, err
		}
		updated++
		fmt.Printf("  Queued outreach: %s (%s, %s priority)\n", org.OrgName, reason, priority)
	}

	return processed, updated, nil
}

func recommendedAction(org store.Community) string {
	if org.PrimaryContact != "" {
		return fmt.Sprintf("Email %s about a team merch partnership", org.PrimaryContact)
	}
	return "Find a club contact and pitch a team merch partnership"
}
