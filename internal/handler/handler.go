package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"faceattend/internal/attendance"
	"faceattend/internal/enrollment"
	"faceattend/internal/faceclient"
	"faceattend/internal/frame"
	"faceattend/internal/session"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) bool

type Handler struct {
	users       *enrollment.Service
	ledger      *attendance.Ledger
	session     *session.Controller
	frames      *frame.Buffer
	summaryDays int
	maxFrameDim int
	checks      map[string]HealthCheck

	streamsDone chan struct{}
	closeOnce   sync.Once
}

func New(users *enrollment.Service, ledger *attendance.Ledger, sess *session.Controller, frames *frame.Buffer, summaryDays, maxFrameDim int) *Handler {
	if summaryDays <= 0 {
		summaryDays = 30
	}
	return &Handler{
		users:       users,
		ledger:      ledger,
		session:     sess,
		frames:      frames,
		summaryDays: summaryDays,
		maxFrameDim: maxFrameDim,
		checks:      make(map[string]HealthCheck),
		streamsDone: make(chan struct{}),
	}
}

// CloseStreams ends open event streams so the server can shut down.
func (h *Handler) CloseStreams() {
	h.closeOnce.Do(func() { close(h.streamsDone) })
}

// AddHealthCheck registers a dependency reported by Healthz.
func (h *Handler) AddHealthCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

// Routes mounts the API. mutate wraps endpoints that change state.
func (h *Handler) Routes(api *gin.RouterGroup, mutate ...gin.HandlerFunc) {
	w := api.Group("", mutate...)

	api.GET("/users", h.ListUsers)
	api.GET("/users/:id", h.GetUser)
	w.POST("/users", h.RegisterUser)
	w.DELETE("/users/:id", h.RemoveUser)
	w.PUT("/users/:id/descriptor", h.ReenrollUser)

	api.GET("/session", h.SessionSnapshot)
	api.GET("/session/events", h.SessionEvents)
	w.POST("/session/start", h.StartSession)
	w.POST("/session/scan", h.StartScanning)
	w.POST("/session/stop", h.StopScanning)
	w.POST("/session/reset", h.ResetSession)
	w.POST("/session/close", h.CloseSession)
	// Frames arrive several times a second and are not rate limited.
	api.POST("/session/frame", h.PushFrame)

	api.GET("/attendance", h.ListAttendance)
	api.GET("/attendance/stats", h.AttendanceStats)
	api.GET("/attendance/users/:id", h.UserAttendance)
	api.GET("/attendance/users/:id/summary", h.UserSummary)
}

func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, frame.ErrInvalidFrame), errors.Is(err, enrollment.ErrInvalidUser):
		return http.StatusBadRequest
	case errors.Is(err, enrollment.ErrNotFound), errors.Is(err, attendance.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, enrollment.ErrDuplicateID),
		errors.Is(err, session.ErrNotStarted),
		errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, enrollment.ErrNoFaceDetected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, faceclient.ErrModelUnavailable), errors.Is(err, faceclient.ErrServiceBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		slog.Error("request failed", "path", c.FullPath(), "err", err)
		msg = "internal error"
	case http.StatusUnprocessableEntity:
		msg = "No face detected. Please try again with a clear view of your face."
	case http.StatusServiceUnavailable:
		msg = "Failed to initialize face recognition. Please refresh the page."
		if errors.Is(err, faceclient.ErrServiceBusy) {
			msg = "Face recognition is busy. Please try again."
		}
	}
	c.JSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
