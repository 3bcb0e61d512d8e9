package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/contextbrain/internal/auth"
	"github.com/yungbote/contextbrain/internal/services"
)

type MemoryHandler struct {
	svc services.MemoryService
}

func NewMemoryHandler(svc services.MemoryService) *MemoryHandler {
	return &MemoryHandler{svc: svc}
}

type addEpisodeRequest struct {
	TenantID  string `json:"tenant_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

func (h *MemoryHandler) AddEpisode(c *gin.Context) {
	var req addEpisodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	episode, err := h.svc.AddEpisode(c.Request.Context(), auth.RawTokenFrom(c.Request.Context()),
		req.TenantID, req.UserID, req.SessionID, req.Role, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"episode": episode})
}

func (h *MemoryHandler) GetRecentEpisodes(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	episodes, err := h.svc.GetRecentEpisodes(c.Request.Context(), auth.RawTokenFrom(c.Request.Context()),
		c.Query("tenant_id"), c.Query("user_id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"episodes": episodes})
}

type upsertFactRequest struct {
	TenantID   string  `json:"tenant_id"`
	UserID     string  `json:"user_id"`
	FactKey    string  `json:"fact_key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

func (h *MemoryHandler) UpsertFact(c *gin.Context) {
	var req upsertFactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	fact, err := h.svc.UpsertFact(c.Request.Context(), auth.RawTokenFrom(c.Request.Context()),
		req.TenantID, req.UserID, req.FactKey, req.Value, req.Confidence)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fact": fact})
}

func (h *MemoryHandler) GetUserFacts(c *gin.Context) {
	facts, err := h.svc.GetUserFacts(c.Request.Context(), auth.RawTokenFrom(c.Request.Context()),
		c.Query("tenant_id"), c.Query("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"facts": facts})
}

type retentionRequest struct {
	TenantID      string `json:"tenant_id"`
	RetentionDays int    `json:"retention_days"`
}

func (h *MemoryHandler) RetentionCleanup(c *gin.Context) {
	var req retentionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	deleted, err := h.svc.RetentionCleanup(c.Request.Context(), auth.RawTokenFrom(c.Request.Context()),
		req.TenantID, time.Duration(req.RetentionDays)*24*time.Hour)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
