// Package stale flags investor relationships that have gone quiet.
package stale

import (
	"context"
	"fmt"
	"time"

	"github.com/makerelephant/mim-platform/internal/store"
)

const agentName = "stale_detector"

// Detector scans active pipeline investors and marks the ones whose
// last contact is missing or older than the threshold.
type Detector struct {
	store     *store.Store
	staleDays int
	now       func() time.Time
}

func New(st *store.Store, staleDays int) *Detector {
	if staleDays <= 0 {
		staleDays = 30
	}
	return &Detector{store: st, staleDays: staleDays, now: time.Now}
}

// Run examines every investor still in the pipeline. Investors already
// marked Stale are counted but not flagged again.
func (d *Detector) Run(ctx context.Context) (processed, updated int, err error) {
	investors, err := d.store.ListPipelineInvestors()
	if err != nil {
		return 0, 0, err
	}

	cutoff := d.now().AddDate(0, 0, -d.staleDays)
	for _, inv := range investors {
		if ctx.Err() != nil {
			return processed, updated, ctx.Err()
		}
		processed++

		if inv.ConnectionStatus == "Stale" {
			continue
		}
		if !isStale(inv.LastContactDate, cutoff) {
			continue
		}

		if err := d.store.SetInvestorConnectionStatus(inv.ID, "Stale"); err != nil {
			return processed, updated, err
		}

		err := d.store.InsertTask(store.Task{
			Title:             fmt.Sprintf("Re-engage %s", inv.FirmName),
			Summary:           staleSummary(inv),
			RecommendedAction: "Send a check-in note or share a recent traction update",
			Priority:          "medium",
			Source:            agentName,
			EntityType:        "investors",
			EntityID:          inv.ID,
		})
		if err != nil {
			return processed, updated, err
		}

		err = d.store.LogActivity(store.Activity{
			AgentName:  agentName,
			ActionType: "marked_stale",
			EntityType: "investors",
			EntityID:   inv.ID,
			Summary:    staleSummary(inv),
			RawData: map[string]any{
				"last_contact_date": inv.LastContactDate,
				"pipeline_status":   inv.PipelineStatus,
				"stale_days":        d.staleDays,
			},
		})
		if err != nil {
			return processed, updated, err
		}
		updated++
		fmt.Printf("  Marked stale: %s (last contact: %s)\n", inv.FirmName, orNever(inv.LastContactDate))
	}

	return processed, updated, nil
}

// isStale treats an unparseable or missing date as stale: a
// relationship with no recorded contact needs attention too.
func isStale(lastContact string, cutoff time.Time) bool {
	if lastContact == "" {
		return true
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, lastContact); err == nil {
			return t.Before(cutoff)
		}
	}
	return true
}

func staleSummary(inv store.PipelineInvestor) string {
	if inv.LastContactDate == "" {
		return fmt.Sprintf("%s has no recorded contact and is still in the pipeline", inv.FirmName)
	}
	return fmt.Sprintf("%s last contacted %s, still in the pipeline", inv.FirmName, inv.LastContactDate)
}

func orNever(date string) string {
	if date == "" {
		return "never"
	}
	return date
}
