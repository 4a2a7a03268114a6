// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

// Package terminal is an interactive console channel.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/jllopis/onyx/pkg/channel"
	"github.com/jllopis/onyx/pkg/core"
)

// Name is the channel name of the terminal.
const Name = "terminal"

// ConversationID is the single conversation a terminal carries.
const ConversationID = "terminal"

// Terminal reads user lines from in and prints assistant messages to out.
// A line "@NAME text" is addressed to the agent NAME.
type Terminal struct {
	*channel.Base
	in  io.Reader
	out io.Writer

	prompt    *color.Color
	assistant *color.Color
	callout   *color.Color
	log       *color.Color
}

// New returns a terminal channel.
func New(in io.Reader, out io.Writer, opts ...channel.BaseOption) *Terminal {
	t := &Terminal{
		in:        in,
		out:       out,
		prompt:    color.New(color.FgGreen, color.Bold),
		assistant: color.New(color.FgCyan),
		callout:   color.New(color.FgYellow, color.Bold),
		log:       color.New(color.Faint),
	}
	opts = append([]channel.BaseOption{channel.WithDeliver(t.print)}, opts...)
	t.Base = channel.NewBase(Name, "Interactive console conversation with the user", opts...)
	return t
}

func (t *Terminal) print(_ context.Context, _ string, msg core.Message) error {
	c := t.assistant
	switch msg.Type {
	case core.MessageCallout:
		c = t.callout
	case core.MessageLog:
		c = t.log
	}
	_, err := c.Fprintln(t.out, msg.Content)
	return err
}

// Run reads lines until in is exhausted, the user types /quit, or ctx ends.
func (t *Terminal) Run(ctx context.Context) error {
	readCtx, stop := context.WithCancel(ctx)
	defer stop()

	lines := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(t.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-readCtx.Done():
				return
			}
		}
		errCh <- scanner.Err()
	}()

	for {
		t.prompt.Fprint(t.out, "> ")
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			fmt.Fprintln(t.out)
			return err
		case line := <-lines:
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "/quit" || line == "/exit" {
				return nil
			}
			if err := t.Receive(ctx, t, ConversationID, ParseLine(line)); err != nil {
				t.log.Fprintln(t.out, "error:", err)
			}
		}
	}
}

// ParseLine turns a console line into a user message, honoring the
// "@NAME text" agent address form.
func ParseLine(line string) core.Message {
	msg := core.UserMessage(line)
	if strings.HasPrefix(line, "@") {
		name, rest, ok := strings.Cut(line[1:], " ")
		if ok && name != "" {
			msg.Agent = name
			msg.Content = strings.TrimSpace(rest)
		}
	}
	return msg
}
