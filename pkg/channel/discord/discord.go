// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

// Package discord carries conversations over Discord text channels. Each
// Discord channel id is one conversation.
package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/jllopis/onyx/pkg/channel"
	"github.com/jllopis/onyx/pkg/core"
)

// Name is the channel name of the Discord transport.
const Name = "discord"

// maxMessageLength is Discord's per-message content limit.
const maxMessageLength = 2000

// Discord is a channel backed by a bot session.
type Discord struct {
	*channel.Base
	session *discordgo.Session
}

// New creates a bot session for token. Call Run to connect.
func New(token string, opts ...channel.BaseOption) (*Discord, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	d := &Discord{session: session}
	opts = append([]channel.BaseOption{channel.WithDeliver(d.send)}, opts...)
	d.Base = channel.NewBase(Name, "Discord conversation with the user", opts...)
	return d, nil
}

func (d *Discord) send(_ context.Context, conversationID string, msg core.Message) error {
	content := msg.Content
	if msg.Type == core.MessageCallout {
		content = "**" + content + "**"
	}
	for _, part := range Split(content, maxMessageLength) {
		if _, err := d.session.ChannelMessageSend(conversationID, part); err != nil {
			return err
		}
	}
	return nil
}

// Run opens the gateway connection and blocks until ctx is done.
func (d *Discord) Run(ctx context.Context) error {
	remove := d.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot || (s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID) {
			return
		}
		content := strings.TrimSpace(m.Content)
		if content == "" {
			return
		}
		msg := core.UserMessage(content)
		if name, rest, ok := strings.Cut(content, " "); ok && strings.HasPrefix(name, "@") && len(name) > 1 {
			msg.Agent, msg.Content = name[1:], strings.TrimSpace(rest)
		}
		if err := d.Receive(ctx, d, m.ChannelID, msg); err != nil {
			_, _ = s.ChannelMessageSend(m.ChannelID, "Sorry, I could not process that message.")
		}
	})
	defer remove()

	if err := d.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	<-ctx.Done()
	return d.session.Close()
}

// Split breaks s into chunks of at most max runes, preferring line breaks.
func Split(s string, max int) []string {
	if s == "" {
		return nil
	}
	var parts []string
	r := []rune(s)
	for len(r) > max {
		cut := max
		for i := max; i > max/2; i-- {
			if r[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(r[:cut]))
		r = r[cut:]
	}
	return append(parts, string(r))
}
