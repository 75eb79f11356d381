// Package store is the persistence layer for the agents: entity
// snapshots, agent output records (tasks, correspondence, activity),
// run bookkeeping, and the agent_config key/value table.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/makerelephant/mim-platform/internal/entity"
)

// Run status values for agent_runs rows.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Store wraps the database with typed operations. It does not own the
// connection; callers close it.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection for callers that need raw SQL.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Snapshot loads a point-in-time view of the entity tables for index
// construction. Junctions are joined to display names; investors and
// orgs without a website are excluded from the domain tables' input.
func (s *Store) Snapshot() (entity.Snapshot, error) {
	var snap entity.Snapshot

	rows, err := s.db.Query(`SELECT id, name, COALESCE(email, ''), COALESCE(organization, '') FROM contacts`)
	if err != nil {
		return snap, fmt.Errorf("load contacts: %w", err)
	}
	for rows.Next() {
		var c entity.Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Organization); err != nil {
			rows.Close()
			return snap, fmt.Errorf("scan contact: %w", err)
		}
		snap.Contacts = append(snap.Contacts, c)
	}
	rows.Close()

	rows, err = s.db.Query(`SELECT contact_id, email FROM contact_emails`)
	if err != nil {
		return snap, fmt.Errorf("load contact_emails: %w", err)
	}
	for rows.Next() {
		var ce entity.ContactEmail
		if err := rows.Scan(&ce.ContactID, &ce.Email); err != nil {
			rows.Close()
			return snap, fmt.Errorf("scan contact_email: %w", err)
		}
		snap.ContactEmails = append(snap.ContactEmails, ce)
	}
	rows.Close()

	rows, err = s.db.Query(`
		SELECT ic.contact_id, ic.investor_id, i.firm_name
		FROM investor_contacts ic
		JOIN investors i ON i.id = ic.investor_id
	`)
	if err != nil {
		return snap, fmt.Errorf("load investor_contacts: %w", err)
	}
	for rows.Next() {
		var link entity.InvestorLink
		if err := rows.Scan(&link.ContactID, &link.InvestorID, &link.FirmName); err != nil {
			rows.Close()
			return snap, fmt.Errorf("scan investor link: %w", err)
		}
		snap.InvestorLinks = append(snap.InvestorLinks, link)
	}
	rows.Close()

	rows, err = s.db.Query(`
		SELECT oc.contact_id, oc.soccer_org_id, o.org_name
		FROM soccer_org_contacts oc
		JOIN soccer_orgs o ON o.id = oc.soccer_org_id
	`)
	if err != nil {
		return snap, fmt.Errorf("load soccer_org_contacts: %w", err)
	}
	for rows.Next() {
		var link entity.OrgLink
		if err := rows.Scan(&link.ContactID, &link.OrgID, &link.OrgName); err != nil {
			rows.Close()
			return snap, fmt.Errorf("scan org link: %w", err)
		}
		snap.OrgLinks = append(snap.OrgLinks, link)
	}
	rows.Close()

	rows, err = s.db.Query(`SELECT id, firm_name, website FROM investors WHERE website IS NOT NULL`)
	if err != nil {
		return snap, fmt.Errorf("load investors: %w", err)
	}
	for rows.Next() {
		var inv entity.Investor
		if err := rows.Scan(&inv.ID, &inv.FirmName, &inv.Website); err != nil {
			rows.Close()
			return snap, fmt.Errorf("scan investor: %w", err)
		}
		snap.Investors = append(snap.Investors, inv)
	}
	rows.Close()

	rows, err = s.db.Query(`SELECT id, org_name, website FROM soccer_orgs WHERE website IS NOT NULL`)
	if err != nil {
		return snap, fmt.Errorf("load soccer_orgs: %w", err)
	}
	for rows.Next() {
		var org entity.Org
		if err := rows.Scan(&org.ID, &org.OrgName, &org.Website); err != nil {
			rows.Close()
			return snap, fmt.Errorf("scan org: %w", err)
		}
		snap.Orgs = append(snap.Orgs, org)
	}
	rows.Close()

	return snap, nil
}

// Task is an agent-created action item.
type Task struct {
	Title              string
	Description        string
	Summary            string
	RecommendedAction  string
	Priority           string
	Source             string
	EntityType         string
	EntityID           string
	DueDate            string
	GoalRelevanceScore *int
	ThreadID           string
	MessageID          string
}

// InsertTask inserts a task row. Empty optional fields persist as NULL.
func (s *Store) InsertTask(t Task) error {
	if t.Title == "" {
		return fmt.Errorf("task title is required")
	}
	if t.Priority == "" {
		t.Priority = "medium"
	}
	var score any
	if t.GoalRelevanceScore != nil {
		score = *t.GoalRelevanceScore
	}
	_, err := s.db.Exec(`
		INSERT INTO tasks (id, title, description, summary, recommended_action, priority,
			source, entity_type, entity_id, due_date, goal_relevance_score,
			source_thread_id, source_message_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.New().String(), t.Title, nullable(t.Description), nullable(t.Summary),
		nullable(t.RecommendedAction), t.Priority, t.Source, nullable(t.EntityType),
		nullable(t.EntityID), nullable(t.DueDate), score, nullable(t.ThreadID), nullable(t.MessageID))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Correspondence is one persisted message attributed to an entity.
type Correspondence struct {
	EntityType     string
	EntityID       string
	Direction      string
	Subject        string
	Snippet        string
	SenderEmail    string
	SenderName     string
	RecipientEmail string
	EmailDate      string
	MessageID      string
	Source         string
}

// InsertCorrespondence inserts a correspondence row.
func (s *Store) InsertCorrespondence(c Correspondence) error {
	if c.Source == "" {
		c.Source = "gmail"
	}
	_, err := s.db.Exec(`
		INSERT INTO correspondence (id, entity_type, entity_id, direction, subject, snippet,
			sender_email, sender_name, recipient_email, email_date, source_message_id, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.New().String(), c.EntityType, c.EntityID, c.Direction, nullable(c.Subject),
		nullable(c.Snippet), nullable(c.SenderEmail), nullable(c.SenderName),
		nullable(c.RecipientEmail), nullable(c.EmailDate), nullable(c.MessageID), c.Source)
	if err != nil {
		return fmt.Errorf("insert correspondence: %w", err)
	}
	return nil
}

// HasCorrespondence reports whether a message ID was already recorded.
// This is the pipeline's idempotency boundary.
func (s *Store) HasCorrespondence(messageID string) (bool, error) {
	if messageID == "" {
		return false, nil
	}
	var exists int
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM correspondence WHERE source_message_id = ?)
	`, messageID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check correspondence: %w", err)
	}
	return exists == 1, nil
}

// Activity is one activity_log entry.
type Activity struct {
	AgentName  string
	ActionType string
	EntityType string
	EntityID   string
	Summary    string
	RawData    any
	SourceID   string
}

// LogActivity inserts an activity_log row. RawData is stored as JSON.
func (s *Store) LogActivity(a Activity) error {
	var raw any
	if a.RawData != nil {
		b, err := json.Marshal(a.RawData)
		if err != nil {
			return fmt.Errorf("marshal raw_data: %w", err)
		}
		raw = string(b)
	}
	_, err := s.db.Exec(`
		INSERT INTO activity_log (id, agent_name, action_type, entity_type, entity_id, summary, raw_data, source_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.New().String(), a.AgentName, a.ActionType, nullable(a.EntityType),
		nullable(a.EntityID), a.Summary, raw, nullable(a.SourceID))
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// StartRun inserts an agent_runs row with status running and returns
// the run handle.
func (s *Store) StartRun(agentName string) (string, error) {
	runID := uuid.New().String()
	_, err := s.db.Exec(`
		INSERT INTO agent_runs (id, agent_name, status, started_at)
		VALUES (?, ?, ?, ?)
	`, runID, agentName, RunStatusRunning, time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return runID, nil
}

// CompleteRun marks the run completed with its counters.
func (s *Store) CompleteRun(runID string, processed, updated int) error {
	_, err := s.db.Exec(`
		UPDATE agent_runs
		SET status = ?, completed_at = ?, records_processed = ?, records_updated = ?
		WHERE id = ?
	`, RunStatusCompleted, time.Now().Unix(), processed, updated, runID)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// FailRun marks the run failed with an error message.
func (s *Store) FailRun(runID, errorMessage string) error {
	_, err := s.db.Exec(`
		UPDATE agent_runs
		SET status = ?, completed_at = ?, error_message = ?
		WHERE id = ?
	`, RunStatusFailed, time.Now().Unix(), errorMessage, runID)
	if err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	return nil
}

// GetConfig reads a value from agent_config.
func (s *Store) GetConfig(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM agent_config WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get config: %w", err)
	}
	return v, true, nil
}

// SetConfig writes a value to agent_config (upsert).
func (s *Store) SetConfig(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO agent_config (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("set config: %w", err)
	}
	return nil
}

// PipelineInvestor is an investor row as seen by the stale detector.
type PipelineInvestor struct {
	ID               string
	FirmName         string
	LastContactDate  string
	PipelineStatus   string
	ConnectionStatus string
}

// ListPipelineInvestors returns investors not already Passed or Closed.
func (s *Store) ListPipelineInvestors() ([]PipelineInvestor, error) {
	rows, err := s.db.Query(`
		SELECT id, firm_name, COALESCE(last_contact_date, ''),
			COALESCE(pipeline_status, ''), COALESCE(connection_status, '')
		FROM investors
		WHERE pipeline_status IS NULL OR pipeline_status NOT IN ('Passed', 'Closed')
	`)
	if err != nil {
		return nil, fmt.Errorf("list pipeline investors: %w", err)
	}
	defer rows.Close()

	var investors []PipelineInvestor
	for rows.Next() {
		var inv PipelineInvestor
		if err := rows.Scan(&inv.ID, &inv.FirmName, &inv.LastContactDate, &inv.PipelineStatus, &inv.ConnectionStatus); err != nil {
			return nil, fmt.Errorf("scan pipeline investor: %w", err)
		}
		investors = append(investors, inv)
	}
	return investors, rows.Err()
}

// SetInvestorConnectionStatus updates an investor's connection status.
func (s *Store) SetInvestorConnectionStatus(id, status string) error {
	_, err := s.db.Exec(`UPDATE investors SET connection_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("set connection status: %w", err)
	}
	return nil
}

// Community is a soccer org row as seen by the outreach tracker.
type Community struct {
	ID             string
	OrgName        string
	Players        int
	HasMerchLink   bool
	OutreachStatus string
	PrimaryContact string
}

// ListCommunities returns all soccer orgs.
func (s *Store) ListCommunities() ([]Community, error) {
	rows, err := s.db.Query(`
		SELECT id, org_name, COALESCE(players, 0), merch_link IS NOT NULL,
			COALESCE(outreach_status, ''), COALESCE(primary_contact, '')
		FROM soccer_orgs
	`)
	if err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	defer rows.Close()

	var orgs []Community
	for rows.Next() {
		var org Community
		if err := rows.Scan(&org.ID, &org.OrgName, &org.Players, &org.HasMerchLink, &org.OutreachStatus, &org.PrimaryContact); err != nil {
			return nil, fmt.Errorf("scan community: %w", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// SetOutreachStatus updates a soccer org's outreach status.
func (s *Store) SetOutreachStatus(id, status string) error {
	_, err := s.db.Exec(`UPDATE soccer_orgs SET outreach_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("set outreach status: %w", err)
	}
	return nil
}

// SparseInvestor is an investor missing profile data.
type SparseInvestor struct {
	ID       string
	FirmName string
}

// ListSparseInvestors returns investors with no description and no
// sector focus, candidates for enrichment.
func (s *Store) ListSparseInvestors() ([]SparseInvestor, error) {
	rows, err := s.db.Query(`
		SELECT id, firm_name
		FROM investors
		WHERE (description IS NULL OR description = '')
		  AND (sector_focus IS NULL OR sector_focus = '')
	`)
	if err != nil {
		return nil, fmt.Errorf("list sparse investors: %w", err)
	}
	defer rows.Close()

	var investors []SparseInvestor
	for rows.Next() {
		var inv SparseInvestor
		if err := rows.Scan(&inv.ID, &inv.FirmName); err != nil {
			return nil, fmt.Errorf("scan sparse investor: %w", err)
		}
		investors = append(investors, inv)
	}
	return investors, rows.Err()
}

// Columns UpdateInvestorProfile may touch.
var profileColumns = map[string]struct{}{
	"description":         {},
	"sector_focus":        {},
	"website":             {},
	"notable_investments": {},
	"check_size":          {},
}

// UpdateInvestorProfile sets the given profile fields on an investor.
// Unknown columns are rejected.
func (s *Store) UpdateInvestorProfile(id string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}

	var sets []string
	var args []any
	for col, val := range fields {
		if _, ok := profileColumns[col]; !ok {
			return fmt.Errorf("unknown profile column %q", col)
		}
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}
	args = append(args, id)

	_, err := s.db.Exec(`UPDATE investors SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update investor profile: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
