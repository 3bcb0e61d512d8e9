package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/contextbrain/internal/auth"
	"github.com/yungbote/contextbrain/internal/search"
)

type SearchHandler struct {
	engine *search.Engine
}

func NewSearchHandler(engine *search.Engine) *SearchHandler {
	return &SearchHandler{engine: engine}
}

type searchRequest struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id,omitempty"`
	Query    string `json:"query"`
	Limit    int    `json:"limit"`
}

func (h *SearchHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	results, err := h.engine.Search(c.Request.Context(), auth.RawTokenFrom(c.Request.Context()), search.Request{
		TenantID: req.TenantID,
		UserID:   req.UserID,
		Query:    req.Query,
		Limit:    req.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// SearchStream emits results as server-sent events. Client disconnect
// cancels the request context, which stops retrieval work promptly.
func (h *SearchHandler) SearchStream(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	err := h.engine.SearchStream(c.Request.Context(), auth.RawTokenFrom(c.Request.Context()), search.Request{
		TenantID: req.TenantID,
		UserID:   req.UserID,
		Query:    req.Query,
		Limit:    req.Limit,
	}, func(r search.Result) error {
		c.SSEvent("result", r)
		c.Writer.Flush()
		return nil
	})
	if err != nil {
		if errors.Is(err, c.Request.Context().Err()) {
			return
		}
		boundary := apiErrorPayload(err)
		c.SSEvent("error", boundary)
		c.Writer.Flush()
		return
	}
	c.SSEvent("done", gin.H{})
	c.Writer.Flush()
}

type graphSearchRequest struct {
	searchRequest
	Relations []string `json:"relations,omitempty"`
	Depth     int      `json:"depth"`
}

func (h *SearchHandler) GraphSearch(c *gin.Context) {
	var req graphSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Depth <= 0 {
		req.Depth = 2
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")

	results, frontier, err := h.engine.GraphSearch(c.Request.Context(), auth.RawTokenFrom(c.Request.Context()), search.Request{
		TenantID: req.TenantID,
		UserID:   req.UserID,
		Query:    req.Query,
		Limit:    req.Limit,
	}, req.Relations, req.Depth)
	if err != nil {
		c.SSEvent("error", apiErrorPayload(err))
		c.Writer.Flush()
		return
	}
	for _, r := range results {
		if c.Request.Context().Err() != nil {
			return
		}
		c.SSEvent("result", r)
		c.Writer.Flush()
	}
	for _, f := range frontier {
		if c.Request.Context().Err() != nil {
			return
		}
		c.SSEvent("neighbor", f)
		c.Writer.Flush()
	}
	c.SSEvent("done", gin.H{})
	c.Writer.Flush()
}
