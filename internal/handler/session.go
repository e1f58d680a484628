package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"faceattend/internal/frame"
)

type frameRequest struct {
	Image string `json:"image"`
	// Error is set by the browser when the camera could not be opened.
	Error string `json:"error"`
}

func (h *Handler) SessionSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Snapshot())
}

func (h *Handler) StartSession(c *gin.Context) {
	if err := h.session.Start(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.session.Snapshot())
}

func (h *Handler) StartScanning(c *gin.Context) {
	h.command(c, h.session.StartScanning)
}

func (h *Handler) StopScanning(c *gin.Context) {
	h.command(c, h.session.StopScanning)
}

func (h *Handler) ResetSession(c *gin.Context) {
	h.command(c, h.session.Reset)
}

func (h *Handler) CloseSession(c *gin.Context) {
	h.command(c, h.session.Close)
}

func (h *Handler) command(c *gin.Context, fn func() error) {
	if err := fn(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.session.Snapshot())
}

// PushFrame stores the latest camera frame for the session to poll.
func (h *Handler) PushFrame(c *gin.Context) {
	var req frameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Error != "" {
		h.frames.Fail(frame.ErrCameraAccessDenied)
		c.Status(http.StatusAccepted)
		return
	}
	f, err := frame.ParseDataURI(req.Image)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.maxFrameDim > 0 {
		if f, err = frame.Normalize(f, h.maxFrameDim); err != nil {
			writeError(c, err)
			return
		}
	}
	h.frames.Put(f)
	c.Status(http.StatusAccepted)
}

// SessionEvents streams session events as server-sent events, starting with
// the current snapshot.
func (h *Handler) SessionEvents(c *gin.Context) {
	events, unsubscribe := h.session.Subscribe()
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("snapshot", h.session.Snapshot())
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Kind), ev)
			return true
		case <-ctx.Done():
			return false
		case <-h.streamsDone:
			return false
		}
	})
}
