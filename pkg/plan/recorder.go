// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Recorder persists plan snapshots as a write-only audit trail.
type Recorder interface {
	Record(ctx context.Context, agent string, p *Plan) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, agent string, p *Plan) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, agent string, p *Plan) error {
	return f(ctx, agent, p)
}

// MultiRecorder fans a record out to several recorders.
type MultiRecorder []Recorder

// Record implements Recorder. Every recorder runs; the first error is returned.
func (m MultiRecorder) Record(ctx context.Context, agent string, p *Plan) error {
	var first error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, agent, p); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Format is an output format of FileRecorder.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "md"
	FormatYAML     Format = "yaml"
)

// FileRecorder writes one file per format under
// <Dir>/agents/records/<AGENT>-<YYYY-MM-DD>-<HH-MM>-<TITLE>.<ext>.
type FileRecorder struct {
	Dir     string
	Formats []Format
	Now     func() time.Time
}

// NewFileRecorder writes JSON and Markdown records under dir.
func NewFileRecorder(dir string) *FileRecorder {
	return &FileRecorder{Dir: dir, Formats: []Format{FormatJSON, FormatMarkdown}}
}

// Path returns the record path for the given agent, title and format.
func (f *FileRecorder) Path(agent, title string, format Format, at time.Time) string {
	name := fmt.Sprintf("%s-%s-%s-%s.%s",
		SanitizeFileName(agent),
		at.Format("2006-01-02"),
		at.Format("15-04"),
		SanitizeFileName(strings.ToUpper(title)),
		format,
	)
	return filepath.Join(f.Dir, "agents", "records", name)
}

// Record implements Recorder.
func (f *FileRecorder) Record(_ context.Context, agent string, p *Plan) error {
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	at := now()
	rec := p.Snapshot()
	rec.Agent = agent

	formats := f.Formats
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatMarkdown}
	}
	dir := filepath.Join(f.Dir, "agents", "records")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create records dir: %w", err)
	}
	for _, format := range formats {
		var data []byte
		var err error
		switch format {
		case FormatJSON:
			data, err = rec.JSON()
		case FormatYAML:
			data, err = rec.YAML()
		case FormatMarkdown:
			data = []byte(rec.Markdown())
		default:
			return fmt.Errorf("unknown record format %q", format)
		}
		if err != nil {
			return fmt.Errorf("encode %s record: %w", format, err)
		}
		if err := os.WriteFile(f.Path(agent, rec.Title, format, at), data, 0o644); err != nil {
			return fmt.Errorf("write %s record: %w", format, err)
		}
	}
	return nil
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeFileName replaces spaces with underscores and drops every character
// other than letters, digits, dots, dashes and underscores.
func SanitizeFileName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
	name = unsafeFileChars.ReplaceAllString(name, "")
	name = strings.Trim(name, ".")
	if name == "" {
		return "untitled"
	}
	return name
}

// MemoryRecorder keeps records in memory.
type MemoryRecorder struct {
	mu      sync.Mutex
	records []Record
}

// Record implements Recorder.
func (m *MemoryRecorder) Record(_ context.Context, agent string, p *Plan) error {
	rec := p.Snapshot()
	rec.Agent = agent
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	return nil
}

// Records returns the stored records.
func (m *MemoryRecorder) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}
