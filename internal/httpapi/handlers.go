package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fleetvoice-platform/internal/calls"
	"fleetvoice-platform/internal/schedule"
	"fleetvoice-platform/internal/transcripts"
)

// CallReader is the read surface the API needs from the calls store.
type CallReader interface {
	Resolve(ctx context.Context, id string) (calls.Call, error)
	ListRecent(ctx context.Context, limit int) ([]calls.Call, error)
}

// TranscriptReader lists stored dialogue turns.
type TranscriptReader interface {
	ListByConversation(ctx context.Context, conversationID string) ([]transcripts.Transcription, error)
}

// ScheduleWriter is the intake surface for bulk call requests.
type ScheduleWriter interface {
	BulkCreate(ctx context.Context, reqs []schedule.NewEntry) ([]schedule.Entry, error)
	GetByGroup(ctx context.Context, groupID string) ([]schedule.Entry, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Calls       CallReader
	Transcripts TranscriptReader
	Schedules   ScheduleWriter
}

// --- Calls ---

// GetCall resolves a call by call_sid or conversation_id.
func (h Handlers) GetCall(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call identifier required"})
		return
	}
	call, err := h.Calls.Resolve(c.Request.Context(), id)
	if errors.Is(err, calls.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
		return
	}
	c.JSON(http.StatusOK, call)
}

// ListCalls returns the most recent calls, newest first.
func (h Handlers) ListCalls(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be 1-500"})
			return
		}
		limit = n
	}
	out, err := h.Calls.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call listing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": out})
}

// --- Transcripts ---

// GetTranscript returns the ordered dialogue for a call, resolved by
// call_sid or conversation_id.
func (h Handlers) GetTranscript(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call identifier required"})
		return
	}
	call, err := h.Calls.Resolve(c.Request.Context(), id)
	if errors.Is(err, calls.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
		return
	}
	if call.ConversationID == nil || *call.ConversationID == "" {
		c.JSON(http.StatusOK, gin.H{"call_sid": call.CallSID, "turns": []transcripts.Transcription{}})
		return
	}
	turns, err := h.Transcripts.ListByConversation(c.Request.Context(), *call.ConversationID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "transcript lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"call_sid":        call.CallSID,
		"conversation_id": *call.ConversationID,
		"turns":           turns,
	})
}

// --- Schedules ---

type bulkScheduleRequest struct {
	Entries []schedule.NewEntry `json:"entries"`
}

// CreateSchedules accepts a batch of call requests; all entries land or
// none do.
func (h Handlers) CreateSchedules(c *gin.Context) {
	var req bulkScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(req.Entries) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "entries required"})
		return
	}
	created, err := h.Schedules.BulkCreate(c.Request.Context(), req.Entries)
	if errors.Is(err, schedule.ErrInvalidArgument) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "schedule creation failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"group_id": created[0].GroupID,
		"entries":  created,
	})
}

// GetScheduleGroup returns every entry submitted in one bulk request.
func (h Handlers) GetScheduleGroup(c *gin.Context) {
	groupID := c.Param("group_id")
	if groupID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "group_id required"})
		return
	}
	entries, err := h.Schedules.GetByGroup(c.Request.Context(), groupID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "schedule lookup failed"})
		return
	}
	if len(entries) == 0 {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "schedule group not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"group_id": groupID, "entries": entries})
}
