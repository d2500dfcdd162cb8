package http

import (
	"github.com/gin-gonic/gin"
	"github.com/pranjitbis/freelancer-ledger/internal/config"
	"go.uber.org/zap"
)

func NewRouter(svc Services, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	RegisterHandlers(r, svc)
	return r
}
