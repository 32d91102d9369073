package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/SaddamHosen42/obe-engine-api/internal/middleware"
)

func actorFromContext(c *gin.Context) string {
	return middleware.ActorID(c)
}
