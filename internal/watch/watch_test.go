package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleEML = `From: Jane Doe <jane@greenhillcapital.com>
To: me@mim.team
Cc: sam@baystatesc.org
Subject: Intro call
Date: Sun, 30 Aug 2026 10:00:00 +0000
Message-Id: <abc123@mail.example>

Can we set up a call next week?
`

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "msg.eml")
	if err := os.WriteFile(path, []byte(sampleEML), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if msg.ID != "abc123@mail.example" {
		t.Fatalf("id = %q", msg.ID)
	}
	if msg.From != "jane@greenhillcapital.com" || msg.FromName != "Jane Doe" {
		t.Fatalf("from = %q (%q)", msg.From, msg.FromName)
	}
	if len(msg.To) != 1 || msg.To[0] != "me@mim.team" {
		t.Fatalf("to = %v", msg.To)
	}
	if len(msg.CC) != 1 || msg.CC[0] != "sam@baystatesc.org" {
		t.Fatalf("cc = %v", msg.CC)
	}
	if msg.Subject != "Intro call" {
		t.Fatalf("subject = %q", msg.Subject)
	}
	if msg.Body != "Can we set up a call next week?\n" {
		t.Fatalf("body = %q", msg.Body)
	}
	if msg.Date != time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC) {
		t.Fatalf("date = %v", msg.Date)
	}
	if msg.Source != "spool" {
		t.Fatalf("source = %q", msg.Source)
	}
}

func TestParseFileNoMessageID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fallback.eml")
	eml := "From: a@b.com\nSubject: x\n\nbody\n"
	if err := os.WriteFile(path, []byte(eml), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if msg.ID != "fallback.eml" {
		t.Fatalf("id = %q", msg.ID)
	}
}

func TestParseFileMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.eml")
	if err := os.WriteFile(path, []byte("not an email"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := ParseFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}
