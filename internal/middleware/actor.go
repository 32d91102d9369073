package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// ActorHeader carries the caller identity resolved by the upstream gateway.
// Authentication itself happens before requests reach this service.
const ActorHeader = "X-Actor-Id"

// ContextActorKey stores the actor id on the request context.
const ContextActorKey = "actor_id"

// Actor extracts the gateway-supplied actor identity into the context.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor := strings.TrimSpace(c.GetHeader(ActorHeader)); actor != "" {
			c.Set(ContextActorKey, actor)
		}
		c.Next()
	}
}

// ActorID returns the actor id for the current request, or "" when absent.
func ActorID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	if actor, ok := c.Get(ContextActorKey); ok {
		if id, valid := actor.(string); valid {
			return id
		}
	}
	return ""
}
