// Package watch runs the pipeline against .eml files dropped into a
// spool directory, as an alternate message source to Gmail.
package watch

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/makerelephant/mim-platform/internal/pipeline"
)

// Watcher observes a spool directory and feeds parsed messages to the
// pipeline. Processed files move to a done/ subdirectory; files that
// fail to parse stay in place.
type Watcher struct {
	dir      string
	debounce time.Duration
	pipe     *pipeline.Pipeline
}

func New(dir string, debounce time.Duration, pipe *pipeline.Pipeline) (*Watcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("spool directory is required")
	}
	if debounce <= 0 {
		debounce = 5 * time.Second
	}
	return &Watcher{dir: dir, debounce: debounce, pipe: pipe}, nil
}

// Run scans the spool once, then blocks watching for new files until
// the context is cancelled. Events are debounced so a burst of drops
// triggers a single scan.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(w.dir, "done"), 0755); err != nil {
		return fmt.Errorf("failed to create done directory: %w", err)
	}

	// Pick up anything already waiting.
	if err := w.scan(ctx); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	fmt.Printf("  Watching %s (debounce %s)\n", w.dir, w.debounce)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !strings.HasSuffix(strings.ToLower(event.Name), ".eml") {
				continue
			}
			// Reset the debounce window on every relevant event.
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			pending = true

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Printf("  Warning: watch error: %v\n", err)

		case <-timer.C:
			pending = false
			if err := w.scan(ctx); err != nil {
				return err
			}
		}
	}
}

// scan processes every .eml file currently in the spool.
func (w *Watcher) scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read spool: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".eml") {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		path := filepath.Join(w.dir, entry.Name())
		msg, err := ParseFile(path)
		if err != nil {
			fmt.Printf("  Warning: failed to parse %s: %v\n", entry.Name(), err)
			continue
		}

		out, err := w.pipe.Process(ctx, msg)
		if err != nil {
			return err
		}
		if out.Skipped {
			fmt.Printf("  Skipped %s: %s\n", entry.Name(), out.SkipReason)
		} else {
			fmt.Printf("  Processed %s: %s\n", entry.Name(), out.Result.Summary)
		}

		if err := os.Rename(path, filepath.Join(w.dir, "done", entry.Name())); err != nil {
			return fmt.Errorf("failed to move %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// ParseFile parses an RFC 5322 message file into a pipeline message.
func ParseFile(path string) (pipeline.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return pipeline.Message{}, err
	}
	defer f.Close()

	m, err := mail.ReadMessage(f)
	if err != nil {
		return pipeline.Message{}, fmt.Errorf("failed to parse message: %w", err)
	}

	body, err := io.ReadAll(m.Body)
	if err != nil {
		return pipeline.Message{}, fmt.Errorf("failed to read body: %w", err)
	}

	var fromName, fromEmail string
	if addr, err := mail.ParseAddress(m.Header.Get("From")); err == nil {
		fromName = addr.Name
		fromEmail = strings.ToLower(addr.Address)
	} else {
		fromEmail = strings.ToLower(strings.TrimSpace(m.Header.Get("From")))
	}

	var date time.Time
	if d, err := m.Header.Date(); err == nil {
		date = d.UTC()
	}

	id := strings.Trim(m.Header.Get("Message-Id"), "<> ")
	if id == "" {
		id = filepath.Base(path)
	}

	return pipeline.Message{
		ID:       id,
		From:     fromEmail,
		FromName: fromName,
		To:       headerAddresses(m.Header, "To"),
		CC:       headerAddresses(m.Header, "Cc"),
		Subject:  m.Header.Get("Subject"),
		Body:     string(body),
		Date:     date,
		Source:   "spool",
	}, nil
}

func headerAddresses(h mail.Header, key string) []string {
	addrs, err := h.AddressList(key)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, strings.ToLower(a.Address))
	}
	return out
}
