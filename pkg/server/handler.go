package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mikeboe/research-crew/pkg/config"
	"github.com/mikeboe/research-crew/pkg/research"
	"github.com/mikeboe/research-crew/pkg/stream"
)

type Handler struct {
	Store      SessionStore
	Cfg        *config.Config
	Researcher research.Researcher
	Assembler  research.Assembler
}

func NewHandler(store SessionStore, cfg *config.Config, researcher research.Researcher, assembler research.Assembler) *Handler {
	return &Handler{Store: store, Cfg: cfg, Researcher: researcher, Assembler: assembler}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/settings", h.settings)
	r.GET("/sse", h.researchSSE)
	api := r.Group("/api")
	{
		api.GET("/research", h.listSessions)
		api.GET("/research/:id", h.getSession)
		api.GET("/research/:id/logs", h.getSessionLogs)
	}
}

func (h *Handler) limits() research.Limits {
	return research.Limits{
		MaxSections:         h.Cfg.MaxSections,
		MinTopicLength:      h.Cfg.MinTopicLength,
		MaxTopicLength:      h.Cfg.MaxTopicLength,
		MaxGuidelinesLength: h.Cfg.MaxGuidelinesLength,
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"version":   config.Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) settings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"llm_model":            h.Cfg.FastModel,
		"max_concurrent_tasks": h.Cfg.ResearchWorkers,
		"max_sections":         h.Cfg.MaxSections,
	})
}

// researchSSE runs one research session and streams its events. The
// stream is opened even for invalid requests so the validation failure
// is delivered as a fatal error event.
func (h *Handler) researchSSE(c *gin.Context) {
	req := research.Request{
		Topic:      strings.TrimSpace(c.Query("topic")),
		Guidelines: strings.TrimSpace(c.Query("guidelines")),
		Sections:   research.ParseSections(c.Query("sections")),
	}

	id := uuid.New()
	logger := h.Store.SessionLogger(id)

	rec := &SessionRecord{
		ID:         id,
		Topic:      req.Topic,
		Guidelines: req.Guidelines,
		Sections:   req.Sections,
		Status:     research.SessionRunning.String(),
	}
	if err := h.Store.CreateSession(c.Request.Context(), rec); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	pub := stream.NewPublisher(c.Writer)
	pub.WriteHeaders(c.Writer.Header())
	c.Status(http.StatusOK)
	c.Writer.Flush()

	orch := research.NewOrchestrator(
		research.NewRunner(h.Researcher, h.Cfg.SectionTimeout),
		research.NewCompiler(h.Assembler, h.Cfg.AssemblyTimeout),
		h.limits(),
		h.Cfg.ResearchWorkers,
	)
	orch.Logger = logger

	// Section jobs run to completion even if the reader disconnects;
	// the publisher drops writes once the client is gone.
	ctx := context.WithoutCancel(c.Request.Context())
	sess, events := orch.StartSession(ctx, id.String(), req)

	if err := pub.Run(events); err != nil {
		logger.Warn("Stream reader disconnected, session ran to completion", "error", err)
	}

	var report *string
	if sess.Report != "" {
		report = &sess.Report
	}
	if err := h.Store.FinishSession(ctx, id, sess.Status.String(), report); err != nil {
		logger.Error("Failed to persist session outcome", "error", err)
	}
}

func (h *Handler) listSessions(c *gin.Context) {
	sessions, err := h.Store.ListSessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// Return empty list instead of null
	if sessions == nil {
		sessions = []SessionRecord{}
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *Handler) getSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return
	}

	rec, err := h.Store.GetSession(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rec)
}

func (h *Handler) getSessionLogs(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return
	}

	logs, err := h.Store.GetSessionLogs(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if logs == nil {
		logs = []LogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}
