package api

import (
	"context"
	"net/http"
	"sync"

	"aarambh-client/internal/codelab"
	"aarambh-client/internal/config"
	"aarambh-client/internal/grading"
	"aarambh-client/internal/logger"
	"aarambh-client/internal/model"
	"aarambh-client/internal/notify"
	"aarambh-client/internal/submission"
	"aarambh-client/internal/upload"
	"aarambh-client/internal/worker"
	"aarambh-client/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Backend is the part of the LMS client the agent calls directly.
type Backend interface {
	submission.API
	StudentAssignments(ctx context.Context) ([]model.Assignment, error)
	UnreadNotificationCount(ctx context.Context) (int, error)
	Logout(ctx context.Context) error
}

type Deps struct {
	Backend   Backend
	Uploader  upload.Uploader
	Guard     *submission.Guard
	Assistant *grading.Assistant
	Runner    *codelab.Runner
	Poller    *worker.NotificationPoller
	// Inbox collects toasts raised outside a dialog until the UI fetches
	// them.
	Inbox *notify.Recorder
}

type Handler struct {
	cfg      *config.Config
	deps     Deps
	validate *validator.Validate

	mu          sync.Mutex
	dialogs     map[string]*dialog
	assignments map[string]model.Assignment

	log zerolog.Logger
}

func NewHandler(cfg *config.Config, deps Deps) *Handler {
	if deps.Inbox == nil {
		deps.Inbox = &notify.Recorder{}
	}
	return &Handler{
		cfg:         cfg,
		deps:        deps,
		validate:    validator.New(),
		dialogs:     make(map[string]*dialog),
		assignments: make(map[string]model.Assignment),
		log:         logger.For("agent"),
	}
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.cfg.App.Name,
		"version": h.cfg.App.Version,
	})
}

func (h *Handler) refreshAssignments(ctx context.Context) ([]model.Assignment, error) {
	list, err := h.deps.Backend.StudentAssignments(ctx)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.assignments = make(map[string]model.Assignment, len(list))
	for _, a := range list {
		h.assignments[a.ID] = a
	}
	h.mu.Unlock()
	return list, nil
}

func (h *Handler) ListAssignments(c *gin.Context) {
	list, err := h.refreshAssignments(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load assignments")
		writeError(c, err, "Failed to load assignments")
		return
	}

	type row struct {
		model.Assignment
		Status    model.SubmissionStatus `json:"status"`
		CanSubmit bool                   `json:"canSubmit"`
	}
	rows := make([]row, 0, len(list))
	for _, a := range list {
		rows = append(rows, row{Assignment: a, Status: a.Status(), CanSubmit: a.CanSubmit()})
	}
	c.JSON(http.StatusOK, gin.H{"assignments": rows})
}

type aiAssistRequest struct {
	AIPrompt string `json:"aiPrompt" validate:"max=2000"`
}

func (h *Handler) AIAssist(c *gin.Context) {
	var req aiAssistRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &req) {
		return
	}

	id := c.Param("id")
	res, err := h.deps.Assistant.Request(c.Request.Context(), id, req.AIPrompt)
	if err != nil {
		writeError(c, err, "Failed to get AI grading assistance", h.deps.Inbox.Drain()...)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestion": res, "toasts": h.deps.Inbox.Drain()})
}

// AIAssistStatus reports whether a suggestion is being fetched and the one
// currently held, if any.
func (h *Handler) AIAssistStatus(c *gin.Context) {
	id := c.Param("id")
	resp := gin.H{"loading": h.deps.Assistant.Loading(id)}
	if res, ok := h.deps.Assistant.Result(id); ok {
		resp["suggestion"] = res
	}
	c.JSON(http.StatusOK, resp)
}

type gradeRequest struct {
	Score    *float64 `json:"score" validate:"required,gte=0"`
	Feedback string   `json:"feedback" validate:"max=5000"`
}

// Grade commits the teacher's own score. The AI suggestion for the
// submission is dropped once a grade is written.
func (h *Handler) Grade(c *gin.Context) {
	var req gradeRequest
	if !h.bind(c, &req) {
		return
	}

	id := c.Param("id")
	sub, err := h.deps.Assistant.Grade(c.Request.Context(), id, *req.Score, req.Feedback)
	if err != nil {
		writeError(c, err, "Failed to grade submission", h.deps.Inbox.Drain()...)
		return
	}
	h.deps.Assistant.Discard(id)
	c.JSON(http.StatusOK, gin.H{"submission": sub, "toasts": h.deps.Inbox.Drain()})
}

func (h *Handler) ExecuteCode(c *gin.Context) {
	var req model.ExecuteRequest
	if !h.bind(c, &req) {
		return
	}

	res, err := h.deps.Runner.Execute(c.Request.Context(), req)
	var execErr *codelab.ExecutionError
	switch {
	case errors.As(err, &execErr) && execErr.Err == nil:
		// The program ran and reported its own error.
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": execErr.Message, "attempts": execErr.Attempts})
		return
	case errors.As(err, &execErr):
		c.JSON(statusOf(execErr.Err), gin.H{
			"error":    execErr.Message,
			"kind":     execErr.Kind.String(),
			"attempts": execErr.Attempts,
		})
		return
	case err != nil:
		writeError(c, err, codelab.UserMessage(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res})
}

func (h *Handler) CodeLabStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"executing": h.deps.Runner.Executing()})
}

func (h *Handler) UnreadCount(c *gin.Context) {
	count, polledAt := h.deps.Poller.Unread()
	if polledAt.IsZero() {
		if err := h.deps.Poller.Poll(c.Request.Context()); err != nil {
			writeError(c, err, "Failed to load notifications")
			return
		}
		count, polledAt = h.deps.Poller.Unread()
	}
	c.JSON(http.StatusOK, gin.H{"count": count, "polledAt": polledAt})
}

func (h *Handler) Toasts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"toasts": h.deps.Inbox.Drain()})
}

// Logout ends the backend session and closes every open dialog.
func (h *Handler) Logout(c *gin.Context) {
	err := h.deps.Backend.Logout(c.Request.Context())

	h.mu.Lock()
	dialogs := h.dialogs
	h.dialogs = make(map[string]*dialog)
	h.assignments = make(map[string]model.Assignment)
	h.mu.Unlock()
	for _, d := range dialogs {
		d.close()
	}
	h.deps.Assistant.Reset()

	if err != nil {
		h.log.Warn().Err(err).Msg("Remote logout failed, local session cleared")
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// bind decodes the JSON body into v and validates it, answering 400 on
// failure.
func (h *Handler) bind(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return false
	}
	return true
}
