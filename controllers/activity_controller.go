package controllers

import (
	"errors"
	"net/http"

	"option-ledger/services"

	"github.com/gin-gonic/gin"
)

// ActivityController serves the daily ledger activity journal
type ActivityController struct {
	activityLogger *services.ActivityLogger
}

// NewActivityController creates a new activity controller
func NewActivityController(activityLogger *services.ActivityLogger) *ActivityController {
	return &ActivityController{
		activityLogger: activityLogger,
	}
}

// HandleGetCurrentActivity returns today's activity log
// GET /api/v1/activity/current
func (ac *ActivityController) HandleGetCurrentActivity(c *gin.Context) {
	log, err := ac.activityLogger.GetCurrentLog()
	if err != nil {
		respondActivityError(c, err)
		return
	}

	c.JSON(http.StatusOK, log)
}

// HandleGetActivityByDate returns the activity log for one day
// GET /api/v1/activity/:date
func (ac *ActivityController) HandleGetActivityByDate(c *gin.Context) {
	log, err := ac.activityLogger.GetLogForDate(c.Param("date"))
	if err != nil {
		respondActivityError(c, err)
		return
	}

	c.JSON(http.StatusOK, log)
}

// HandleListActivityLogs lists the days that have an activity log
// GET /api/v1/activity
func (ac *ActivityController) HandleListActivityLogs(c *gin.Context) {
	dates, err := ac.activityLogger.ListAvailableLogs()
	if err != nil {
		respondActivityError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"dates": dates,
		"count": len(dates),
	})
}

// HandleGetActivitySummary totals the daily summaries over a date range
// GET /api/v1/activity/summary?from=2025-01-01&to=2025-01-31
func (ac *ActivityController) HandleGetActivitySummary(c *gin.Context) {
	from := c.Query("from")
	to := c.DefaultQuery("to", from)
	if from == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": "from is required",
		})
		return
	}

	summary, dates, err := ac.activityLogger.SummarizeRange(from, to)
	if err != nil {
		respondActivityError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"from":    from,
		"to":      to,
		"dates":   dates,
		"summary": summary,
	})
}

func respondActivityError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrInvalidActivityDate):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrActivityLogNotFound):
		status = http.StatusNotFound
	}

	c.JSON(status, gin.H{"error": err.Error()})
}
