package stale

import (
	"context"
	"testing"
	"time"

	"github.com/makerelephant/mim-platform/internal/db"
	"github.com/makerelephant/mim-platform/internal/store"
)

func setup(t *testing.T) *store.Store {
	t.Helper()
	conn, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return store.New(conn)
}

func TestRunFlagsStaleInvestors(t *testing.T) {
	st := setup(t)
	stmts := []string{
		// Old contact, active pipeline: should be flagged.
		`INSERT INTO investors (id, firm_name, last_contact_date, pipeline_status) VALUES ('i1', 'Old Fund', '2026-01-10', 'Diligence')`,
		// Recent contact: untouched.
		`INSERT INTO investors (id, firm_name, last_contact_date, pipeline_status) VALUES ('i2', 'Fresh Fund', '2026-08-20', 'Diligence')`,
		// No contact date at all: flagged.
		`INSERT INTO investors (id, firm_name, pipeline_status) VALUES ('i3', 'Silent Fund', 'Intro')`,
		// Already stale: counted but not re-flagged.
		`INSERT INTO investors (id, firm_name, last_contact_date, pipeline_status, connection_status) VALUES ('i4', 'Known Stale', '2025-01-01', 'Diligence', 'Stale')`,
		// Closed: excluded entirely.
		`INSERT INTO investors (id, firm_name, last_contact_date, pipeline_status) VALUES ('i5', 'Done Deal', '2024-01-01', 'Closed')`,
	}
	for _, stmt := range stmts {
		if _, err := st.DB().Exec(stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	d := New(st, 30)
	d.now = func() time.Time { return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC) }

	processed, updated, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if processed != 4 {
		t.Fatalf("processed = %d", processed)
	}
	if updated != 2 {
		t.Fatalf("updated = %d", updated)
	}

	var status string
	if err := st.DB().QueryRow(`SELECT connection_status FROM investors WHERE id = 'i1'`).Scan(&status); err != nil {
		t.Fatalf("read i1: %v", err)
	}
	if status != "Stale" {
		t.Fatalf("i1 status = %s", status)
	}

	var taskCount int
	if err := st.DB().QueryRow(`SELECT COUNT(*) FROM tasks WHERE source = 'stale_detector'`).Scan(&taskCount); err != nil {
		t.Fatalf("count tasks: %v", err)
	}
	if taskCount != 2 {
		t.Fatalf("task count = %d", taskCount)
	}

	// Second run finds nothing new.
	processed, updated, err = d.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if updated != 0 {
		t.Fatalf("second run updated = %d", updated)
	}
}

func TestIsStale(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		date string
		want bool
	}{
		{"", true},
		{"2026-07-31", true},
		{"2026-08-02", false},
		{"2026-08-02T09:00:00Z", false},
		{"garbage", true},
	}
	for _, tc := range cases {
		if got := isStale(tc.date, cutoff); got != tc.want {
			t.Fatalf("isStale(%q) = %v, want %v", tc.date, got, tc.want)
		}
	}
}
