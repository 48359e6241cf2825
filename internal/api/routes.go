package api

import (
	"github.com/gin-gonic/gin"

	infragin "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/gin"
)

// SetupRoutes configures all API routes. When jwtSecret is set the /api/v1
// group requires a bearer token.
func SetupRoutes(router *gin.Engine, handler *Handler, jwtSecret string) {
	if handler.deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(handler.deps.Metrics))
	}

	v1 := infragin.ProtectedGroup(router, "/api/v1", jwtSecret)
	{
		v1.GET("/proxies", handler.ListProxies)

		v1.GET("/ratelimit", handler.ListRateLimits)
		v1.GET("/ratelimit/:source", handler.GetRateLimit)

		v1.GET("/circuits", handler.ListCircuits)
		v1.POST("/circuits/:name/reset", handler.ResetCircuit)

		dlq := v1.Group("/dlq")
		{
			dlq.GET("", handler.ListDeadLetters)
			dlq.POST("/replay", handler.ReplayDeadLetters)
			dlq.GET("/:id", handler.GetDeadLetter)
		}
	}
}
