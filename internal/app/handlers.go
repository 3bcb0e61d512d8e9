package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/contextbrain/internal/handlers"
	"github.com/yungbote/contextbrain/internal/middleware"
	"github.com/yungbote/contextbrain/internal/platform/logger"
	"github.com/yungbote/contextbrain/internal/server"
)

type Handlers struct {
	Brain  *handlers.BrainHandler
	Search *handlers.SearchHandler
	Memory *handlers.MemoryHandler
}

func wireHandlers(log *logger.Logger, serviceset Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Brain:  handlers.NewBrainHandler(serviceset.Brain),
		Search: handlers.NewSearchHandler(serviceset.Engine),
		Memory: handlers.NewMemoryHandler(serviceset.Memory),
	}
}

func wireRouter(log *logger.Logger, handlerset Handlers) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		BrainHandler:    handlerset.Brain,
		SearchHandler:   handlerset.Search,
		MemoryHandler:   handlerset.Memory,
		TokenMiddleware: middleware.NewTokenMiddleware(log),
	})
}
