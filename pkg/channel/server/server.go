// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes a channel over HTTP.
//
//	POST /message                {message, conversation_id?, agent?}
//	GET  /history                ?conversation_id=&count=
//	GET  /agents
//	POST /agents/:name/message   {message}
//	POST /agents/:name/pause
//	POST /agents/:name/resume
//	GET  /healthz
package server

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jllopis/onyx/pkg/agent"
	"github.com/jllopis/onyx/pkg/channel"
	"github.com/jllopis/onyx/pkg/core"
	"github.com/jllopis/onyx/pkg/errors"
	"github.com/jllopis/onyx/pkg/memory"
	"github.com/jllopis/onyx/pkg/telemetry"
)

// Name is the channel name of the HTTP server.
const Name = "server"

// Agents is the part of the agent manager the server exposes.
type Agents interface {
	Infos() []agent.Info
	RecieveAgentMessage(msg core.Message) bool
	Pause(name string) error
	Resume(name string) error
}

// Options configures the server channel.
type Options struct {
	Addr    string
	History memory.History
	Agents  Agents
	Logger  *slog.Logger
}

// Server is an HTTP channel. Assistant messages are stored in the history
// and read back by clients through GET /history.
type Server struct {
	*channel.Base
	addr   string
	agents Agents
	engine *gin.Engine
	logger *slog.Logger
}

// New builds the server channel and its routes.
func New(opts Options) *Server {
	logger := telemetry.LoggerOr(opts.Logger)
	s := &Server{
		Base: channel.NewBase(Name, "HTTP conversation with the user",
			channel.WithHistory(opts.History), channel.WithLogger(logger)),
		addr:   opts.Addr,
		agents: opts.Agents,
		logger: logger,
	}
	if s.addr == "" {
		s.addr = ":8080"
	}

	g := gin.New()
	g.Use(gin.Recovery(), s.logRequests())
	g.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	g.POST("/message", s.postMessage)
	g.GET("/history", s.getHistory)
	agents := g.Group("/agents")
	agents.GET("", s.listAgents)
	agents.POST("/:name/message", s.postAgentMessage)
	agents.POST("/:name/pause", s.pauseAgent)
	agents.POST("/:name/resume", s.resumeAgent)
	s.engine = g
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http channel listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

type messageRequest struct {
	Message        string `json:"message" binding:"required"`
	ConversationID string `json:"conversation_id"`
	Agent          string `json:"agent"`
}

func (s *Server) postMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}
	msg := core.UserMessage(req.Message)
	msg.Agent = req.Agent

	if req.Agent != "" && s.agents != nil && s.agents.RecieveAgentMessage(msg) {
		c.JSON(http.StatusAccepted, gin.H{"conversation_id": req.ConversationID, "routed_to": req.Agent})
		return
	}

	// The pipeline may dispatch agents that outlive this request.
	ctx := context.WithoutCancel(c.Request.Context())
	if err := s.Receive(ctx, s, req.ConversationID, msg); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"conversation_id": req.ConversationID})
}

func (s *Server) getHistory(c *gin.Context) {
	convID := c.Query("conversation_id")
	count := 0
	if raw := c.Query("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "count must be a non-negative integer"})
			return
		}
		count = n
	}
	messages, err := s.ConversationHistory(c.Request.Context(), convID, count)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if messages == nil {
		messages = []core.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": convID, "messages": messages})
}

func (s *Server) listAgents(c *gin.Context) {
	if s.agents == nil {
		c.JSON(http.StatusOK, gin.H{"agents": []agent.Info{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": s.agents.Infos()})
}

func (s *Server) postAgentMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg := core.UserMessage(req.Message)
	msg.Agent = c.Param("name")
	if s.agents == nil || !s.agents.RecieveAgentMessage(msg) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no running agent named " + msg.Agent})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"routed_to": msg.Agent})
}

func (s *Server) pauseAgent(c *gin.Context) {
	s.control(c, func(a Agents, name string) error { return a.Pause(name) })
}

func (s *Server) resumeAgent(c *gin.Context) {
	s.control(c, func(a Agents, name string) error { return a.Resume(name) })
}

func (s *Server) control(c *gin.Context, fn func(Agents, string) error) {
	if s.agents == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "agents are not available"})
		return
	}
	name := c.Param("name")
	if err := fn(s.agents, name); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent": name})
}

func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if oe := errors.AsOnyxError(err); oe != nil && oe.StatusCode != 0 {
		status = oe.StatusCode
	}
	s.logger.WarnContext(c.Request.Context(), "http channel request failed", telemetry.LogError, err)
	c.JSON(status, gin.H{"error": err.Error()})
}
