package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	// Health check
	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/assignments", handler.ListAssignments)

		// Submission dialogs
		dialogs := v1.Group("/dialogs")
		dialogs.POST("", handler.OpenDialog)
		dialogs.PUT("/:id/content", handler.SetContent)
		dialogs.POST("/:id/files", handler.AddFiles)
		dialogs.DELETE("/:id/files/:index", handler.RemoveFile)
		dialogs.POST("/:id/submit", handler.Submit)
		dialogs.GET("/:id/events", handler.Events)
		dialogs.DELETE("/:id", handler.CloseDialog)

		// Teacher grading
		v1.GET("/submissions/:id/ai-assist", handler.AIAssistStatus)
		v1.POST("/submissions/:id/ai-assist", handler.AIAssist)
		v1.POST("/submissions/:id/grade", handler.Grade)

		v1.POST("/code-lab/execute", handler.ExecuteCode)
		v1.GET("/code-lab/status", handler.CodeLabStatus)
		v1.GET("/notifications/unread-count", handler.UnreadCount)
		v1.GET("/toasts", handler.Toasts)
		v1.POST("/session/logout", handler.Logout)
	}
}
