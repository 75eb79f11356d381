// Package enrich fills in missing investor profile data using the
// language model.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/makerelephant/mim-platform/internal/store"
)

const agentName = "investor_enrichment"

const systemPrompt = `You are a research assistant for Made in Motion, a sports merchandise company raising capital. Given a venture firm's name, return what you know about it as JSON with exactly these keys: "description" (1-2 sentences), "sector_focus" (comma-separated sectors), "website" (URL or empty string), "notable_investments" (comma-separated company names), "check_size" (typical range, e.g. "$500K-$2M", or empty string). Use an empty string for anything you are not confident about. Respond with JSON only.`

// ModelClient is the slice of the language-model client the agent
// needs.
type ModelClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type profile struct {
	Description        string `json:"description"`
	SectorFocus        string `json:"sector_focus"`
	Website            string `json:"website"`
	NotableInvestments string `json:"notable_investments"`
	CheckSize          string `json:"check_size"`
}

// Agent enriches investors that have neither a description nor a
// sector focus, up to maxPerRun per invocation.
type Agent struct {
	store     *store.Store
	client    ModelClient
	maxPerRun int
}

func New(st *store.Store, client ModelClient, maxPerRun int) *Agent {
	if maxPerRun <= 0 {
		maxPerRun = 20
	}
	return &Agent{store: st, client: client, maxPerRun: maxPerRun}
}

// Run enriches sparse investors. A failed model call or unusable
// response skips that investor; only store failures abort the run.
func (a *Agent) Run(ctx context.Context) (processed, updated int, err error) {
	if a.client == nil {
		return 0, 0, fmt.Errorf("no model client configured")
	}

	investors, err := a.store.ListSparseInvestors()
	if err != nil {
		return 0, 0, err
	}
	if len(investors) > a.maxPerRun {
		investors = investors[:a.maxPerRun]
	}

	for _, inv := range investors {
		if ctx.Err() != nil {
			return processed, updated, ctx.Err()
		}
		processed++

		response, err := a.client.Complete(ctx, systemPrompt, fmt.Sprintf("Firm name: %s", inv.FirmName))
		if err != nil {
			fmt.Printf("  Warning: enrichment call failed for %s: %v\n", inv.FirmName, err)
			continue
		}

		p, ok := parseProfile(response)
		if !ok {
			fmt.Printf("  Warning: unusable enrichment response for %s\n", inv.FirmName)
			continue
		}

		fields := make(map[string]string)
		if p.Description != "" {
			fields["description"] = p.Description
		}
		if p.SectorFocus != "" {
			fields["sector_focus"] = p.SectorFocus
		}
		if p.Website != "" {
			fields["website"] = p.Website
		}
		if p.NotableInvestments != "" {
			fields["notable_investments"] = p.NotableInvestments
		}
		if p.CheckSize != "" {
			fields["check_size"] = p.CheckSize
		}
		if len(fields) == 0 {
			continue
		}

		if err := a.store.UpdateInvestorProfile(inv.ID, fields); err != nil {
			return processed, updated, err
		}

		cols := make([]string, 0, len(fields))
		for col := range fields {
			cols = append(cols, col)
		}
		err = a.store.LogActivity(store.Activity{
			AgentName:  agentName,
			ActionType: "profile_enriched",
			EntityType: "investors",
			EntityID:   inv.ID,
			Summary:    fmt.Sprintf("Enriched profile for %s", inv.FirmName),
			RawData:    map[string]any{"fields": cols},
		})
		if err != nil {
			return processed, updated, err
		}
		updated++
		fmt.Printf("  Enriched %s (%d fields)\n", inv.FirmName, len(fields))
	}

	return processed, updated, nil
}

// parseProfile decodes the model response, recovering from chatty
// output by extracting the outermost brace pair.
func parseProfile(response string) (profile, bool) {
	var p profile
	raw := strings.TrimSpace(response)
	if err := json.Unmarshal([]byte(raw), &p); err == nil {
		return p, true
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return profile{}, false
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &p); err != nil {
		return profile{}, false
	}
	return p, true
}
