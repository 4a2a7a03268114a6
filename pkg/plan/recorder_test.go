// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"WRITE A REPORT":   "WRITE_A_REPORT",
		"../../etc/passwd": "etcpasswd",
		"a/b\\c:d":         "abcd",
		"   ":              "untitled",
		"v1.2-final":       "v1.2-final",
	}
	for in, want := range cases {
		if got := SanitizeFileName(in); got != want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFileRecorderWritesJSONAndMarkdown(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 3, 7, 9, 5, 0, 0, time.UTC)
	rec := &FileRecorder{Dir: dir, Formats: []Format{FormatJSON, FormatMarkdown, FormatYAML}, Now: func() time.Time { return at }}

	p := newPlan(t, StepDefinition{Description: "gather", Required: true}, StepDefinition{Description: "polish"})
	p.MarkCurrentStepCompleted()
	p.MarkCurrentStepFinished(ReasonFailed)

	if err := rec.Record(context.Background(), "AB12CD34", p); err != nil {
		t.Fatalf("record: %v", err)
	}
	mdPath := filepath.Join(dir, "agents", "records", "AB12CD34-2026-03-07-09-05-WRITE_REPORT.md")
	md, err := os.ReadFile(mdPath)
	if err != nil {
		t.Fatalf("read markdown: %v", err)
	}
	if !strings.Contains(string(md), "- [x] gather (REQUIRED)") || !strings.Contains(string(md), "- [ ] polish (OPTIONAL) - FAILED") {
		t.Fatalf("unexpected markdown:\n%s", md)
	}

	raw, err := os.ReadFile(strings.TrimSuffix(mdPath, ".md") + ".json")
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var decoded Record
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if decoded.Title != "write report" || !decoded.Completed || decoded.CurrentStepIndex != 2 {
		t.Fatalf("unexpected json record: %+v", decoded)
	}
	if _, err := os.Stat(strings.TrimSuffix(mdPath, ".md") + ".yaml"); err != nil {
		t.Fatalf("expected yaml record: %v", err)
	}
}

func TestMultiRecorder(t *testing.T) {
	var a, b MemoryRecorder
	p := newPlan(t, StepDefinition{Description: "a", Required: true})
	if err := (MultiRecorder{&a, nil, &b}).Record(context.Background(), "X", p); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(a.Records()) != 1 || len(b.Records()) != 1 || a.Records()[0].Agent != "X" {
		t.Fatalf("records not fanned out")
	}
}

func TestSQLiteRecorder(t *testing.T) {
	db, err := sql.Open("sqlite", "file:plan_records_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	rec, err := NewSQLiteRecorder(db)
	if err != nil {
		t.Fatalf("new sqlite recorder: %v", err)
	}
	p := newPlan(t, StepDefinition{Description: "a", Required: true})
	p.SetActionOutput("done")
	p.MarkCurrentStepCompleted()
	if err := rec.Record(context.Background(), "AGENT1", p); err != nil {
		t.Fatalf("record: %v", err)
	}
	other := newPlan(t, StepDefinition{Description: "b", Required: true})
	other.MarkFinished(ReasonAborted)
	if err := rec.Record(context.Background(), "AGENT2", other); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := rec.List(context.Background(), RecordFilter{Agent: "AGENT1", Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if !got[0].Completed || got[0].FinishReason != ReasonCompleted || len(got[0].Steps) != 1 {
		t.Fatalf("unexpected record: %+v", got[0])
	}

	aborted, err := rec.List(context.Background(), RecordFilter{FinishReason: ReasonAborted})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(aborted) != 1 || aborted[0].Agent != "AGENT2" {
		t.Fatalf("unexpected aborted records: %+v", aborted)
	}
}
