package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"faceattend/internal/enrollment"
	"faceattend/internal/frame"
)

type registerRequest struct {
	Name  string `json:"name" binding:"required"`
	Role  string `json:"role"`
	Image string `json:"image" binding:"required"`
}

type reenrollRequest struct {
	Image string `json:"image" binding:"required"`
}

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if users == nil {
		users = []enrollment.User{}
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) GetUser(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// RegisterUser enrolls a user from a JSON body carrying a data-URI photo.
func (h *Handler) RegisterUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	f, err := frame.ParseDataURI(req.Image)
	if err != nil {
		writeError(c, err)
		return
	}
	u, err := h.users.Register(c.Request.Context(), req.Name, req.Role, f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

// RemoveUser deletes a user. Attendance records are kept.
func (h *Handler) RemoveUser(c *gin.Context) {
	if err := h.users.Remove(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ReenrollUser(c *gin.Context) {
	var req reenrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	f, err := frame.ParseDataURI(req.Image)
	if err != nil {
		writeError(c, err)
		return
	}
	u, err := h.users.Reenroll(c.Request.Context(), c.Param("id"), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
