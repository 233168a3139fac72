package httpapi

import (
	"call-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Register mounts the call routes on an authenticated group.
func (h Handlers) Register(v1 *gin.RouterGroup) {
	c := v1.Group("/calls")
	{
		c.POST("", h.CreateCall)
		c.GET("/active", h.ActiveCall)
		c.POST("/:id/accept", h.AcceptCall)
		c.POST("/:id/end", h.EndCall)
	}

	// Event lifecycle hooks; staff and server callers only.
	events := v1.Group("/events")
	events.Use(rbac.RequireStaff())
	{
		events.POST("/:id/calls/end", h.EndEventCalls)
	}

	reports := v1.Group("/reports")
	reports.Use(rbac.RequireStaff())
	{
		reports.GET("/calls", h.CallsReport)
	}
}
