// Package gmail fetches recent mail via gogcli and normalizes it into
// pipeline messages.
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"net/mail"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/makerelephant/mim-platform/internal/pipeline"
)

// Connector pulls messages from a Gmail account via gogcli.
type Connector struct {
	account    string
	maxResults int
}

// New creates a connector for the given account.
func New(account string, maxResults int) (*Connector, error) {
	if account == "" {
		return nil, fmt.Errorf("account email is required for the Gmail connector")
	}
	if maxResults <= 0 {
		maxResults = 50
	}

	// Verify gogcli is available
	if _, err := exec.LookPath("gog"); err != nil {
		return nil, fmt.Errorf("gogcli (gog) not found in PATH. Install with: brew install steipete/tap/gogcli")
	}

	return &Connector{account: account, maxResults: maxResults}, nil
}

// Thread is a Gmail thread from gogcli.
type Thread struct {
	ID       string    `json:"id"`
	Snippet  string    `json:"snippet"`
	Messages []Message `json:"messages"`
}

// Message is a single message in a thread.
type Message struct {
	ID           string  `json:"id"`
	ThreadID     string  `json:"threadId"`
	Snippet      string  `json:"snippet"`
	InternalDate string  `json:"internalDate"` // Unix timestamp in milliseconds as string
	Payload      Payload `json:"payload"`
}

// Payload contains the message headers and body.
type Payload struct {
	MimeType string    `json:"mimeType"`
	Headers  []Header  `json:"headers"`
	Body     Body      `json:"body"`
	Parts    []Payload `json:"parts"`
}

type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Body struct {
	Size int    `json:"size"`
	Data string `json:"data"`
}

type searchResponse struct {
	Threads []struct {
		ID string `json:"id"`
	} `json:"threads"`
}

type threadResponse struct {
	Thread Thread `json:"thread"`
}

// FetchSince returns all messages received after the given time,
// oldest first, normalized for the pipeline.
func (c *Connector) FetchSince(ctx context.Context, since time.Time) ([]pipeline.Message, error) {
	query := fmt.Sprintf("in:anywhere -in:spam -in:trash after:%d", since.Unix())

	cmd := exec.CommandContext(ctx, "gog", "gmail", "search", query, "--json",
		"--max", strconv.Itoa(c.maxResults), "--account", c.account)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("gogcli search failed: %w (output: %s)", err, string(output))
	}

	var searchResp searchResponse
	if err := json.Unmarshal(output, &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse search JSON: %w", err)
	}

	var msgs []pipeline.Message
	for _, t := range searchResp.Threads {
		thread, err := c.fetchThread(ctx, t.ID)
		if err != nil {
			return msgs, err
		}
		for _, m := range thread.Messages {
			pm := normalize(m, thread)
			if !pm.Date.IsZero() && pm.Date.Before(since) {
				continue
			}
			msgs = append(msgs, pm)
		}
	}
	return msgs, nil
}

func (c *Connector) fetchThread(ctx context.Context, threadID string) (Thread, error) {
	backoff := time.Second
	for attempt := 0; ; attempt++ {
		cmd := exec.CommandContext(ctx, "gog", "gmail", "thread", "get", threadID,
			"--json", "--account", c.account)
		output, err := cmd.CombinedOutput()
		if err != nil {
			// gogcli surfaces Gmail API rate limits as strings.
			if attempt < 5 && strings.Contains(string(output), "rateLimitExceeded") {
				select {
				case <-ctx.Done():
					return Thread{}, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return Thread{}, fmt.Errorf("gogcli thread get failed: %w (output: %s)", err, string(output))
		}

		var resp threadResponse
		if err := json.Unmarshal(output, &resp); err != nil {
			return Thread{}, fmt.Errorf("failed to parse thread JSON: %w", err)
		}
		return resp.Thread, nil
	}
}

func normalize(m Message, thread Thread) pipeline.Message {
	headers := make(map[string]string)
	for _, h := range m.Payload.Headers {
		headers[strings.ToLower(h.Name)] = h.Value
	}

	fromName, fromEmail := parseSender(headers["from"])

	var date time.Time
	if ms, err := strconv.ParseInt(strings.TrimSpace(m.InternalDate), 10, 64); err == nil && ms > 0 {
		date = time.UnixMilli(ms).UTC()
	}

	snippet := m.Snippet
	if snippet == "" {
		snippet = thread.Snippet
	}

	threadID := m.ThreadID
	if threadID == "" {
		threadID = thread.ID
	}

	return pipeline.Message{
		ID:       m.ID,
		ThreadID: threadID,
		From:     fromEmail,
		FromName: fromName,
		To:       parseAddressList(headers["to"]),
		CC:       parseAddressList(headers["cc"]),
		Subject:  decodeMIMEHeader(headers["subject"]),
		Body:     decodeBody(extractBody(m.Payload)),
		Snippet:  snippet,
		Date:     date,
		Source:   "gmail",
	}
}

// extractBody pulls the first text body out of the payload tree,
// preferring the top-level body, then text/* parts depth-first.
func extractBody(payload Payload) string {
	if payload.Body.Size > 0 && payload.Body.Data != "" {
		return payload.Body.Data
	}
	for _, part := range payload.Parts {
		if strings.HasPrefix(part.MimeType, "text/") && part.Body.Size > 0 {
			return part.Body.Data
		}
		if len(part.Parts) > 0 {
			if body := extractBody(part); body != "" {
				return body
			}
		}
	}
	return ""
}

func parseSender(s string) (name, email string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	if addr, err := mail.ParseAddress(s); err == nil {
		return strings.TrimSpace(addr.Name), strings.ToLower(strings.TrimSpace(addr.Address))
	}
	// Fallback: naive angle-bracket extraction.
	if idx := strings.Index(s, "<"); idx >= 0 {
		if end := strings.Index(s[idx:], ">"); end > 0 {
			return strings.TrimSpace(s[:idx]), strings.ToLower(strings.TrimSpace(s[idx+1 : idx+end]))
		}
	}
	return "", strings.ToLower(s)
}

// parseAddressList parses a comma-separated list of addresses.
// Handles formats like: "Name <email@example.com>, email2@example.com"
func parseAddressList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	// Try robust parsing first.
	if addrs, err := mail.ParseAddressList(s); err == nil && len(addrs) > 0 {
		emails := make([]string, 0, len(addrs))
		for _, a := range addrs {
			if a == nil {
				continue
			}
			if e := strings.ToLower(strings.TrimSpace(a.Address)); e != "" {
				emails = append(emails, e)
			}
		}
		if len(emails) > 0 {
			return emails
		}
	}

	// Fallback: naive split.
	var emails []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.Index(part, "<"); idx >= 0 {
			if end := strings.Index(part[idx:], ">"); end > 0 {
				if email := strings.TrimSpace(part[idx+1 : idx+end]); email != "" {
					emails = append(emails, strings.ToLower(email))
				}
				continue
			}
		}
		emails = append(emails, strings.ToLower(part))
	}
	return emails
}

func decodeMIMEHeader(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if decoded, err := (&mime.WordDecoder{}).DecodeHeader(s); err == nil {
		return decoded
	}
	return s
}

func decodeBody(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	// Gmail API returns base64url (often without padding).
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		// Some payloads are already plain-ish; return as-is if decode fails.
		return s
	}
	return string(b)
}
