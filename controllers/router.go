package controllers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SetupRouter wires the HTTP API. auth guards every mutating route.
func SetupRouter(
	optionController *OptionController,
	activityController *ActivityController,
	auth gin.HandlerFunc,
	logger *logrus.Logger,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if logger != nil {
		router.Use(requestLogger(logger))
	}

	api := router.Group("/api/v1")
	{
		api.GET("/info", optionController.HandleProgramInfo)

		options := api.Group("/options")
		options.GET("", optionController.HandleListOptions)
		options.GET("/:key", optionController.HandleGetOption)
		options.GET("/:key/events", optionController.HandleListEvents)
		options.POST("", auth, optionController.HandleInitializeOption)
		options.POST("/:key/exercise", auth, optionController.HandleExerciseOption)
		options.POST("/:key/expire", auth, optionController.HandleExpireOption)
		options.DELETE("/:key", auth, optionController.HandleCloseOption)

		if activityController != nil {
			activity := api.Group("/activity")
			activity.GET("", activityController.HandleListActivityLogs)
			activity.GET("/current", activityController.HandleGetCurrentActivity)
			activity.GET("/summary", activityController.HandleGetActivitySummary)
			activity.GET("/:date", activityController.HandleGetActivityByDate)
		}
	}

	return router
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Info("HTTP request")
	}
}
