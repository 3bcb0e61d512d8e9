package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/contextbrain/internal/auth"
	"github.com/yungbote/contextbrain/internal/domain"
	"github.com/yungbote/contextbrain/internal/services"
)

type BrainHandler struct {
	svc services.BrainService
}

func NewBrainHandler(svc services.BrainService) *BrainHandler {
	return &BrainHandler{svc: svc}
}

func (h *BrainHandler) IngestDocument(c *gin.Context) {
	var req services.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	node, err := h.svc.IngestDocument(c.Request.Context(), auth.RawTokenFrom(c.Request.Context()), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"node": node})
}

func (h *BrainHandler) GetTaxonomy(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	taxDomain := c.Query("domain")
	nodes, err := h.svc.GetTaxonomy(c.Request.Context(), auth.RawTokenFrom(c.Request.Context()), tenantID, taxDomain)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": nodes})
}

type syncRequest struct {
	TenantID string `json:"tenant_id"`
}

// SyncTaxonomy streams one event per upserted node so long syncs stay
// observable from the client side.
func (h *BrainHandler) SyncTaxonomy(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")

	synced, err := h.svc.SyncTaxonomy(c.Request.Context(), auth.RawTokenFrom(c.Request.Context()), req.TenantID, func(node *domain.TaxonomyNode) error {
		if err := c.Request.Context().Err(); err != nil {
			return err
		}
		c.SSEvent("node", gin.H{"code": node.Code, "path": node.Path})
		c.Writer.Flush()
		return nil
	})
	if err != nil {
		c.SSEvent("error", apiErrorPayload(err))
		c.Writer.Flush()
		return
	}
	c.SSEvent("done", gin.H{"synced": synced})
	c.Writer.Flush()
}

func (h *BrainHandler) SyncGraph(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	edges, err := h.svc.SyncGraph(c.Request.Context(), auth.RawTokenFrom(c.Request.Context()), req.TenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"edges": edges})
}

type resolveRequest struct {
	TenantID string `json:"tenant_id"`
	Alias    string `json:"alias"`
}

func (h *BrainHandler) ResolveEntity(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	resolved, err := h.svc.ResolveEntity(c.Request.Context(), auth.RawTokenFrom(c.Request.Context()), req.TenantID, req.Alias)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alias": resolved})
}
