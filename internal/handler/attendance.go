package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"faceattend/internal/attendance"
)

// ListAttendance returns records for ?date=YYYY-MM-DD, "today" (default) or "all".
func (h *Handler) ListAttendance(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		records []attendance.Record
		err     error
	)
	switch date := c.DefaultQuery("date", "today"); date {
	case "today":
		records, err = h.ledger.Today(ctx)
	case "all":
		records, err = h.ledger.All(ctx)
	default:
		if _, perr := h.ledger.ParseDate(date); perr != nil {
			badRequest(c, perr.Error())
			return
		}
		records, err = h.ledger.RecordsForDate(ctx, date)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(records))
}

func (h *Handler) UserAttendance(c *gin.Context) {
	records, err := h.ledger.RecordsForUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(records))
}

// UserSummary reports presence over ?days= calendar days ending on ?as_of=.
func (h *Handler) UserSummary(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := h.users.Get(ctx, id); err != nil {
		writeError(c, err)
		return
	}

	days := h.summaryDays
	if v := c.Query("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > 366 {
			badRequest(c, "days must be between 1 and 366")
			return
		}
		days = parsed
	}
	asOf := time.Now()
	if v := c.Query("as_of"); v != "" {
		t, err := h.ledger.ParseDate(v)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		asOf = t
	}

	summary, err := h.ledger.Summarize(ctx, id, days, asOf)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// AttendanceStats reports enrolled users, check-ins and the attendance rate
// for ?date=YYYY-MM-DD, today by default.
func (h *Handler) AttendanceStats(c *gin.Context) {
	ctx := c.Request.Context()
	date := c.Query("date")
	if date != "" {
		if _, err := h.ledger.ParseDate(date); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	users, err := h.users.List(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	stats, err := h.ledger.Stats(ctx, date, ids)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func nonNil(records []attendance.Record) []attendance.Record {
	if records == nil {
		return []attendance.Record{}
	}
	return records
}
