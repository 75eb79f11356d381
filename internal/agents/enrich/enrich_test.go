package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/makerelephant/mim-platform/internal/db"
	"github.com/makerelephant/mim-platform/internal/store"
)

type fakeClient struct {
	responses map[string]string
	err       error
}

func (f *fakeClient) Complete(ctx context.Context, system, user string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.responses[user], nil
}

func setup(t *testing.T) *store.Store {
	t.Helper()
	conn, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return store.New(conn)
}

func TestRunEnrichesSparseInvestors(t *testing.T) {
	st := setup(t)
	stmts := []string{
		`INSERT INTO investors (id, firm_name) VALUES ('i1', 'Greenhill Capital')`,
		`INSERT INTO investors (id, firm_name, description, sector_focus) VALUES ('i2', 'Known Fund', 'Already profiled', 'Sports')`,
	}
	for _, stmt := range stmts {
		if _, err := st.DB().Exec(stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	client := &fakeClient{responses: map[string]string{
		"Firm name: Greenhill Capital": `Here is what I found: {"description": "Growth equity firm.", "sector_focus": "Consumer, Sports", "website": "https://greenhillcapital.com", "notable_investments": "", "check_size": "$1M-$5M"}`,
	}}

	a := New(st, client, 20)
	processed, updated, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if processed != 1 || updated != 1 {
		t.Fatalf("processed=%d updated=%d", processed, updated)
	}

	var desc, sector, website string
	var notable *string
	err = st.DB().QueryRow(`SELECT description, sector_focus, website, notable_investments FROM investors WHERE id = 'i1'`).
		Scan(&desc, &sector, &website, &notable)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if desc != "Growth equity firm." || sector != "Consumer, Sports" || website != "https://greenhillcapital.com" {
		t.Fatalf("profile = %q / %q / %q", desc, sector, website)
	}
	// Empty response fields are never written.
	if notable != nil {
		t.Fatalf("notable_investments = %v", *notable)
	}
}

func TestRunSkipsFailedCalls(t *testing.T) {
	st := setup(t)
	if _, err := st.DB().Exec(`INSERT INTO investors (id, firm_name) VALUES ('i1', 'Quiet Fund')`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	a := New(st, &fakeClient{err: errors.New("api down")}, 20)
	processed, updated, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if processed != 1 || updated != 0 {
		t.Fatalf("processed=%d updated=%d", processed, updated)
	}
}

func TestRunRespectsLimit(t *testing.T) {
	st := setup(t)
	for _, id := range []string{"i1", "i2", "i3"} {
		if _, err := st.DB().Exec(`INSERT INTO investors (id, firm_name) VALUES (?, ?)`, id, "Fund "+id); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	a := New(st, &fakeClient{responses: map[string]string{}}, 2)
	processed, _, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if processed != 2 {
		t.Fatalf("processed = %d", processed)
	}
}

func TestParseProfile(t *testing.T) {
	cases := []struct {
		in   string
		ok   bool
		desc string
	}{
		{`{"description": "A firm."}`, true, "A firm."},
		{"```json\n{\"description\": \"Fenced.\"}\n```", true, "Fenced."},
		{`Sure! {"description": "Chatty."} Hope that helps.`, true, "Chatty."},
		{`no json here`, false, ""},
		{``, false, ""},
	}
	for _, tc := range cases {
		p, ok := parseProfile(tc.in)
		if ok != tc.ok {
			t.Fatalf("parseProfile(%q) ok = %v, want %v", tc.in, ok, tc.ok)
		}
		if p.Description != tc.desc {
			t.Fatalf("parseProfile(%q) description = %q", tc.in, p.Description)
		}
	}
}

func TestRunNoClient(t *testing.T) {
	st := setup(t)
	a := New(st, nil, 20)
	if _, _, err := a.Run(context.Background()); err == nil {
		t.Fatal("expected error without a client")
	}
}
