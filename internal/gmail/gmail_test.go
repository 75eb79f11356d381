package gmail

import (
	"encoding/base64"
	"testing"
	"time"
)

func TestParseAddressList(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"jane@example.com", []string{"jane@example.com"}},
		{"Jane Doe <Jane@Example.com>", []string{"jane@example.com"}},
		{"Jane <jane@a.com>, bob@b.com", []string{"jane@a.com", "bob@b.com"}},
		{"broken <<jane@a.com>", []string{"jane@a.com"}},
	}
	for _, tc := range cases {
		got := parseAddressList(tc.in)
		if len(got) != len(tc.want) {
			t.Fatalf("parseAddressList(%q) = %v, want %v", tc.in, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("parseAddressList(%q) = %v, want %v", tc.in, got, tc.want)
			}
		}
	}
}

func TestParseSender(t *testing.T) {
	name, email := parseSender("Jane Doe <Jane@GreenhillCapital.com>")
	if name != "Jane Doe" || email != "jane@greenhillcapital.com" {
		t.Fatalf("got name=%q email=%q", name, email)
	}

	name, email = parseSender("bare@example.com")
	if name != "" || email != "bare@example.com" {
		t.Fatalf("got name=%q email=%q", name, email)
	}
}

func TestNormalize(t *testing.T) {
	body := base64.RawURLEncoding.EncodeToString([]byte("Can we set up a call?"))
	m := Message{
		ID:           "m1",
		ThreadID:     "t1",
		InternalDate: "1756500000000",
		Snippet:      "Can we set up a call?",
		Payload: Payload{
			MimeType: "multipart/alternative",
			Headers: []Header{
				{Name: "From", Value: "Jane Doe <jane@greenhillcapital.com>"},
				{Name: "To", Value: "me@mim.team"},
				{Name: "Cc", Value: "sam@baystatesc.org"},
				{Name: "Subject", Value: "Intro call"},
			},
			Parts: []Payload{
				{MimeType: "text/plain", Body: Body{Size: 21, Data: body}},
			},
		},
	}

	pm := normalize(m, Thread{ID: "t1"})
	if pm.ID != "m1" || pm.ThreadID != "t1" {
		t.Fatalf("ids = %s/%s", pm.ID, pm.ThreadID)
	}
	if pm.From != "jane@greenhillcapital.com" || pm.FromName != "Jane Doe" {
		t.Fatalf("from = %q (%q)", pm.From, pm.FromName)
	}
	if len(pm.To) != 1 || pm.To[0] != "me@mim.team" {
		t.Fatalf("to = %v", pm.To)
	}
	if len(pm.CC) != 1 || pm.CC[0] != "sam@baystatesc.org" {
		t.Fatalf("cc = %v", pm.CC)
	}
	if pm.Subject != "Intro call" {
		t.Fatalf("subject = %q", pm.Subject)
	}
	if pm.Body != "Can we set up a call?" {
		t.Fatalf("body = %q", pm.Body)
	}
	if pm.Date != time.UnixMilli(1756500000000).UTC() {
		t.Fatalf("date = %v", pm.Date)
	}
	if pm.Source != "gmail" {
		t.Fatalf("source = %q", pm.Source)
	}
}

func TestExtractBodyNested(t *testing.T) {
	inner := base64.RawURLEncoding.EncodeToString([]byte("nested"))
	p := Payload{
		Parts: []Payload{
			{MimeType: "multipart/related", Parts: []Payload{
				{MimeType: "text/html", Body: Body{Size: 6, Data: inner}},
			}},
		},
	}
	if got := decodeBody(extractBody(p)); got != "nested" {
		t.Fatalf("got %q", got)
	}
}

func TestDecodeBodyPassthrough(t *testing.T) {
	// Invalid base64url comes back untouched.
	if got := decodeBody("not base64!!"); got != "not base64!!" {
		t.Fatalf("got %q", got)
	}
}

func TestDecodeMIMEHeader(t *testing.T) {
	if got := decodeMIMEHeader("=?UTF-8?B?SMOpbGxv?="); got != "Héllo" {
		t.Fatalf("got %q", got)
	}
	if got := decodeMIMEHeader("plain subject"); got != "plain subject" {
		t.Fatalf("got %q", got)
	}
}
