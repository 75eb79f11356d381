// Package pipeline runs one message through the full path: dedup,
// entity resolution, classification, and persistence of the resulting
// correspondence, tasks, and activity records.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/makerelephant/mim-platform/internal/classify"
	"github.com/makerelephant/mim-platform/internal/entity"
	"github.com/makerelephant/mim-platform/internal/store"
)

// Direction values for correspondence rows.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Message is one normalized inbound message, independent of which
// connector produced it.
type Message struct {
	ID       string
	ThreadID string
	From     string
	FromName string
	To       []string
	CC       []string
	Subject  string
	Body     string
	Snippet  string
	Date     time.Time
	Source   string // "gmail", "spool", ...
}

// Outcome reports what Process did with a message.
type Outcome struct {
	Skipped    bool
	SkipReason string
	Updated    bool
	Matches    []entity.Match
	Result     classify.Result
}

// Pipeline wires resolution and classification to the store.
type Pipeline struct {
	store      *store.Store
	resolver   *entity.Resolver
	classifier *classify.Classifier
	selfEmails map[string]struct{}
}

func New(st *store.Store, resolver *entity.Resolver, classifier *classify.Classifier, selfEmails []string) *Pipeline {
	self := make(map[string]struct{}, len(selfEmails))
	for _, e := range selfEmails {
		if norm := entity.NormalizeEmail(e); norm != "" {
			self[norm] = struct{}{}
		}
	}
	return &Pipeline{store: st, resolver: resolver, classifier: classifier, selfEmails: self}
}

// Process runs one message through the pipeline. Messages already
// recorded (by source message ID) and messages resolving to no known
// entity are skipped. Classification failures do not skip: the
// classifier falls back internally and the message is still recorded.
func (p *Pipeline) Process(ctx context.Context, msg Message) (Outcome, error) {
	if msg.ID != "" {
		seen, err := p.store.HasCorrespondence(msg.ID)
		if err != nil {
			return Outcome{}, err
		}
		if seen {
			return Outcome{Skipped: true, SkipReason: "already processed"}, nil
		}
	}

	addresses := make([]string, 0, 1+len(msg.To)+len(msg.CC))
	addresses = append(addresses, msg.From)
	addresses = append(addresses, msg.To...)
	addresses = append(addresses, msg.CC...)
	matches := p.resolver.ResolveMultiple(addresses)
	if len(matches) == 0 {
		return Outcome{Skipped: true, SkipReason: "no matching entities"}, nil
	}

	result := p.classifier.Classify(ctx, classify.Message{
		From:    msg.From,
		Subject: msg.Subject,
		Body:    msg.Body,
	}, matches, classify.SourceEmail)

	out := Outcome{Matches: matches, Result: result}
	if result.PrimaryEntityID == "" {
		// Nothing to attribute the message to; record the activity only.
		if err := p.logActivity(msg, matches, result); err != nil {
			return out, err
		}
		return out, nil
	}
	out.Updated = true

	direction := DirectionInbound
	if _, self := p.selfEmails[entity.NormalizeEmail(msg.From)]; self {
		direction = DirectionOutbound
	}

	var emailDate string
	if !msg.Date.IsZero() {
		emailDate = msg.Date.UTC().Format(time.RFC3339)
	}

	err := p.store.InsertCorrespondence(store.Correspondence{
		EntityType:     result.PrimarySilo,
		EntityID:       result.PrimaryEntityID,
		Direction:      direction,
		Subject:        msg.Subject,
		Snippet:        snippet(msg),
		SenderEmail:    msg.From,
		SenderName:     msg.FromName,
		RecipientEmail: strings.Join(msg.To, ", "),
		EmailDate:      emailDate,
		MessageID:      msg.ID,
		Source:         msg.Source,
	})
	if err != nil {
		return out, fmt.Errorf("record correspondence: %w", err)
	}

	for _, item := range result.ActionItems {
		err := p.store.InsertTask(store.Task{
			Title:              item.Title,
			Summary:            item.Summary,
			RecommendedAction:  item.RecommendedAction,
			Priority:           item.Priority,
			Source:             msg.Source,
			EntityType:         result.PrimarySilo,
			EntityID:           result.PrimaryEntityID,
			DueDate:            item.DueDate,
			GoalRelevanceScore: item.GoalRelevanceScore,
			ThreadID:           msg.ThreadID,
			MessageID:          msg.ID,
		})
		if err != nil {
			return out, fmt.Errorf("record task: %w", err)
		}
	}

	if err := p.logActivity(msg, matches, result); err != nil {
		return out, err
	}
	return out, nil
}

func (p *Pipeline) logActivity(msg Message, matches []entity.Match, result classify.Result) error {
	err := p.store.LogActivity(store.Activity{
		AgentName:  "email_scanner",
		ActionType: "email_processed",
		EntityType: result.PrimarySilo,
		EntityID:   result.PrimaryEntityID,
		Summary:    result.Summary,
		RawData: map[string]any{
			"from":      msg.From,
			"subject":   msg.Subject,
			"matches":   len(matches),
			"sentiment": result.Sentiment,
			"tags":      result.Tags,
			"fallback":  result.Fallback,
		},
		SourceID: msg.ID,
	})
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

func snippet(msg Message) string {
	if msg.Snippet != "" {
		return msg.Snippet
	}
	body := strings.TrimSpace(msg.Body)
	if len(body) > 200 {
		return body[:200]
	}
	return body
}
