package http

import (
	"github.com/gin-gonic/gin"
	"github.com/layer-3/sentinel/internal/logging"
	"github.com/layer-3/sentinel/service"
)

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, logger logging.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	handlers := NewAuthHandlers(authService)

	for _, op := range Operations(handlers) {
		chain := append(strategyChain(authService, op), op.Handler)
		router.Handle(op.Method, op.Path, chain...)
	}

	return router
}

func strategyChain(authService *service.AuthService, op Operation) []gin.HandlerFunc {
	switch op.Strategy {
	case StrategyLocal:
		return []gin.HandlerFunc{LocalAuth(authService)}
	case StrategyBearer:
		return []gin.HandlerFunc{BearerAuth(authService, op.Roles)}
	case StrategyBearerRenewal:
		return []gin.HandlerFunc{BearerRenewalAuth(authService)}
	default:
		return nil
	}
}
