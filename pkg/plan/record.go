// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/onyx/pkg/core"
)

// Record is the serializable snapshot of a plan.
type Record struct {
	Agent            string         `json:"agent,omitempty" yaml:"agent,omitempty"`
	Title            string         `json:"title" yaml:"title"`
	Steps            []Step         `json:"steps" yaml:"steps"`
	SourceMessages   []core.Message `json:"sourceMessages,omitempty" yaml:"sourceMessages,omitempty"`
	CurrentStepIndex int            `json:"currentStepIndex" yaml:"currentStepIndex"`
	Completed        bool           `json:"completed" yaml:"completed"`
	Finished         bool           `json:"finished" yaml:"finished"`
	FinishReason     FinishReason   `json:"finishReason,omitempty" yaml:"finishReason,omitempty"`
	RecordedAt       time.Time      `json:"recordedAt" yaml:"recordedAt"`
}

// Snapshot captures the plan's current state.
func (p *Plan) Snapshot() Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	steps := make([]Step, len(p.steps))
	copy(steps, p.steps)
	src := make([]core.Message, len(p.source))
	copy(src, p.source)
	return Record{
		Title:            p.title,
		Steps:            steps,
		SourceMessages:   src,
		CurrentStepIndex: p.current,
		Completed:        p.complete,
		Finished:         p.finished,
		FinishReason:     p.reason,
		RecordedAt:       time.Now().UTC(),
	}
}

// JSON encodes the record with indentation.
func (r Record) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// YAML encodes the record as YAML.
func (r Record) YAML() ([]byte, error) {
	return yaml.Marshal(r)
}

// Markdown renders the record as a checklist.
func (r Record) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.Title)
	if r.Agent != "" {
		fmt.Fprintf(&b, "Agent: %s\n\n", r.Agent)
	}
	status := "RUNNING"
	if r.Finished {
		status = string(r.FinishReason)
	}
	fmt.Fprintf(&b, "Status: %s\n\n## Steps\n\n", status)
	for _, s := range r.Steps {
		box := " "
		if s.Completed {
			box = "x"
		}
		fmt.Fprintf(&b, "- [%s] %s (%s)", box, s.Description, requiredLabel(s.Required))
		if s.Finished && !s.Completed {
			fmt.Fprintf(&b, " - %s", s.FinishReason)
		}
		if s.Retries > 0 {
			fmt.Fprintf(&b, " - retries: %d", s.Retries)
		}
		b.WriteString("\n")
	}
	if len(r.SourceMessages) > 0 {
		b.WriteString("\n## Source messages\n\n")
		b.WriteString(core.FormatTranscript(r.SourceMessages))
		b.WriteString("\n")
	}
	return b.String()
}
