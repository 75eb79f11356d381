// Package classify turns a raw message plus its resolved entity
// matches into a structured classification with prioritized action
// items. The model response is untrusted structured data: it is parsed
// and clamped, and any call or parse failure falls back to a
// deterministic rule-based result so the pipeline never blocks on a
// bad response.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/makerelephant/mim-platform/internal/entity"
)

// Source types understood by the prompt builder.
const (
	SourceEmail = "email"
	SourceSlack = "slack"
)

// Sentiment wire values.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
	SentimentUrgent   = "urgent"
)

// Priority wire values.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// DefaultSiloPreference is the fallback primary-silo preference order.
// It is business policy, not derived from data, so it is configurable.
var DefaultSiloPreference = []string{entity.TypeInvestors, entity.TypeOrgs, entity.TypeContacts}

// Message is the raw content handed to Classify. Email sources use
// From/Subject/Body; slack sources use Channel/User/Text.
type Message struct {
	From    string
	Subject string
	Body    string

	Channel string
	User    string
	Text    string
}

// ActionItem is one extracted task. Summary is situational context
// ("what is happening"); RecommendedAction is the next step ("what to
// do about it"). GoalRelevanceScore, when present, is always within
// [1,10].
type ActionItem struct {
	Title              string
	Summary            string
	RecommendedAction  string
	Priority           string
	DueDate            string
	GoalRelevanceScore *int
}

// Result is the structured classification for one message. Fallback
// distinguishes "the model produced this" from "the deterministic rule
// produced this"; FallbackReason says why when it did.
type Result struct {
	PrimarySilo       string
	PrimaryEntityID   string
	PrimaryEntityName string
	Summary           string
	ActionItems       []ActionItem
	Tags              []string
	Sentiment         string

	Fallback       bool
	FallbackReason string
}

// ModelClient is the external language-model call. anthropic.Client
// implements it; tests substitute fakes.
type ModelClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Classifier classifies messages via a model call with a rule-based
// fallback. A nil client always takes the fallback path.
type Classifier struct {
	client         ModelClient
	siloPreference []string
}

func New(client ModelClient, siloPreference []string) *Classifier {
	if len(siloPreference) == 0 {
		siloPreference = DefaultSiloPreference
	}
	return &Classifier{client: client, siloPreference: siloPreference}
}

// Classify produces a classification for one message. It never returns
// an error: call failures and malformed responses are routed to the
// fallback result.
func (c *Classifier) Classify(ctx context.Context, msg Message, matches []entity.Match, sourceType string) Result {
	if c.client == nil {
		return c.fallbackResult(msg, matches, sourceType, "no model client configured")
	}

	text, err := c.client.Complete(ctx, systemPrompt, buildUserPrompt(msg, matches, sourceType))
	if err != nil {
		return c.fallbackResult(msg, matches, sourceType, fmt.Sprintf("model call failed: %v", err))
	}

	result, err := parseResponse(text)
	if err != nil {
		return c.fallbackResult(msg, matches, sourceType, fmt.Sprintf("bad model response: %v", err))
	}
	return result
}

// wire shapes for the model's JSON response. Unknown extra keys are
// ignored by encoding/json; missing keys take documented defaults.
type wireResult struct {
	PrimarySilo       string           `json:"primary_silo"`
	PrimaryEntityID   *string          `json:"primary_entity_id"`
	PrimaryEntityName *string          `json:"primary_entity_name"`
	Summary           string           `json:"summary"`
	Sentiment         string           `json:"sentiment"`
	ActionItems       []wireActionItem `json:"action_items"`
	Tags              []string         `json:"tags"`
}

type wireActionItem struct {
	Title              string  `json:"title"`
	Summary            *string `json:"summary"`
	RecommendedAction  *string `json:"recommended_action"`
	Priority           string  `json:"priority"`
	DueDate            *string `json:"due_date"`
	GoalRelevanceScore any     `json:"goal_relevance_score"`
}

func parseResponse(text string) (Result, error) {
	text = stripCodeFence(strings.TrimSpace(text))

	var wire wireResult
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return Result{}, fmt.Errorf("parse JSON: %w", err)
	}

	result := Result{
		PrimarySilo:       orDefault(wire.PrimarySilo, entity.TypeContacts),
		PrimaryEntityID:   deref(wire.PrimaryEntityID),
		PrimaryEntityName: deref(wire.PrimaryEntityName),
		Summary:           orDefault(wire.Summary, "Message processed"),
		Sentiment:         orDefault(wire.Sentiment, SentimentNeutral),
		Tags:              wire.Tags,
	}

	for _, ai := range wire.ActionItems {
		result.ActionItems = append(result.ActionItems, ActionItem{
			Title:              orDefault(ai.Title, "Untitled task"),
			Summary:            deref(ai.Summary),
			RecommendedAction:  deref(ai.RecommendedAction),
			Priority:           orDefault(ai.Priority, PriorityMedium),
			DueDate:            deref(ai.DueDate),
			GoalRelevanceScore: clampScore(ai.GoalRelevanceScore),
		})
	}

	return result, nil
}

// stripCodeFence unwraps a ```json fenced block if the model added one.
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	parts := strings.Split(text, "```")
	if len(parts) < 2 {
		return text
	}
	inner := parts[1]
	inner = strings.TrimPrefix(inner, "json")
	return strings.TrimSpace(inner)
}

// clampScore coerces a goal relevance score to an integer in [1,10].
// Non-numeric or missing values become nil, never an error.
func clampScore(v any) *int {
	var n int
	switch val := v.(type) {
	case nil:
		return nil
	case float64:
		n = int(val)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return nil
		}
		n = parsed
	case json.Number:
		parsed, err := val.Int64()
		if err != nil {
			return nil
		}
		n = int(parsed)
	default:
		return nil
	}

	if n < 1 {
		n = 1
	}
	if n > 10 {
		n = 10
	}
	return &n
}

// fallbackResult picks the first resolved match following the silo
// preference order; with no matches the silo defaults to contacts with
// no entity.
func (c *Classifier) fallbackResult(msg Message, matches []entity.Match, sourceType, reason string) Result {
	result := Result{
		PrimarySilo:    entity.TypeContacts,
		Sentiment:      SentimentNeutral,
		Tags:           []string{"unclassified"},
		Fallback:       true,
		FallbackReason: reason,
	}

	for _, prefType := range c.siloPreference {
		found := false
		for _, m := range matches {
			if m.EntityType == prefType {
				result.PrimarySilo = m.EntityType
				result.PrimaryEntityID = m.EntityID
				result.PrimaryEntityName = m.EntityName
				found = true
				break
			}
		}
		if found {
			break
		}
	}

	subject := msg.Subject
	if subject == "" {
		subject = msg.Text
	}
	label := "Email"
	if sourceType == SourceSlack {
		label = "Slack message"
	}
	result.Summary = fmt.Sprintf("%s: %s", label, truncate(subject, 80))

	return result
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
