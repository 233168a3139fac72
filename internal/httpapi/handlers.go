package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"call-platform/internal/auth"
	"call-platform/internal/calls"
	"call-platform/internal/reporting"
	"call-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Calls   *calls.Service
	Users   calls.UserDirectory
	Reports *reporting.Service
}

type createCallRequest struct {
	ContextType calls.ContextType `json:"contextType"`
	ContextID   int64             `json:"contextId"`
	Mode        calls.Mode        `json:"mode"`
}

// CreateCall starts a call in a private pair, group or event, ending
// whatever was active there before.
func (h Handlers) CreateCall(c *gin.Context) {
	user, ok := h.requester(c)
	if !ok {
		return
	}
	var req createCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	cc, err := calls.NewContext(req.ContextType, req.ContextID)
	if err != nil {
		writeError(c, err)
		return
	}
	sess, err := h.Calls.Create(c.Request.Context(), cc, req.Mode, user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// ActiveCall returns the active session of a context, or 204 when none.
func (h Handlers) ActiveCall(c *gin.Context) {
	user, ok := h.requester(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Query("contextId"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "contextId required"})
		return
	}
	cc, err := calls.NewContext(calls.ContextType(c.Query("contextType")), id)
	if err != nil {
		writeError(c, err)
		return
	}
	sess, err := h.Calls.FindActive(c.Request.Context(), cc, user)
	if errors.Is(err, calls.ErrNotFound) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h Handlers) AcceptCall(c *gin.Context) {
	user, ok := h.requester(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	sess, err := h.Calls.Accept(c.Request.Context(), id, user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h Handlers) EndCall(c *gin.Context) {
	user, ok := h.requester(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	sess, err := h.Calls.End(c.Request.Context(), id, user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// EndEventCalls ends every active call of an event.
// RBAC: staff only, enforced by the route group.
func (h Handlers) EndEventCalls(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ended, err := h.Calls.EndForContext(c.Request.Context(), calls.ContextEvent, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ended": ended})
}

// CallsReport aggregates sessions created in [from, to). Both bounds are
// RFC 3339 timestamps. RBAC: staff only, enforced by the route group.
func (h Handlers) CallsReport(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
		return
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
		return
	}
	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		Range:       reporting.TimeRange{From: from, To: to},
		ContextType: calls.ContextType(c.Query("contextType")),
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("calls report failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// requester loads the authenticated user from the directory. The stored
// role wins over the one in the token.
func (h Handlers) requester(c *gin.Context) (calls.User, bool) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return calls.User{}, false
	}
	u, err := h.Users.User(c.Request.Context(), uid)
	if errors.Is(err, calls.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "unknown user"})
		return calls.User{}, false
	}
	if err != nil {
		logger.FromGin(c).Error("user lookup failed", "user_id", uid, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
		return calls.User{}, false
	}
	return u, true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, calls.ErrInvalidContext):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrSessionEnded):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.FromGin(c).Error("call request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
