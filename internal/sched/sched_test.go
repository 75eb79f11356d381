package sched

import "testing"

func TestAddRejectsBadSpec(t *testing.T) {
	s := New()
	if err := s.Add("not a cron spec", func() {}); err == nil {
		t.Fatal("expected error for invalid spec")
	}
	if err := s.Add("*/15 * * * *", func() {}); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}
}
