package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/yoockh/yooscribe/internal/api/handlers"
	"github.com/yoockh/yooscribe/internal/api/middleware"
)

type Deps struct {
	Chunk        *handlers.ChunkHandler
	Conversation *handlers.ConversationHandler
	Assistant    *handlers.AssistantHandler
	Meta         *handlers.MetaHandler
	WS           *handlers.WSHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth())

	auth.GET("/meta/languages", d.Meta.Languages)
	auth.GET("/meta/capabilities", d.Meta.Capabilities)

	auth.POST("/chunks", d.Chunk.Upload)
	auth.GET("/chunks", d.Chunk.ListStandalone)
	auth.GET("/chunks/:chunk_id", d.Chunk.Get)
	auth.PATCH("/chunks/:chunk_id", d.Chunk.Update)
	auth.DELETE("/chunks/:chunk_id", d.Chunk.Delete)
	auth.POST("/chunks/:chunk_id/retry", d.Chunk.Retry)
	auth.GET("/chunks/:chunk_id/transcript", d.Chunk.Transcript)
	auth.GET("/chunks/:chunk_id/events", middleware.RequireAdmin(), d.Chunk.Events)

	auth.POST("/conversations", d.Conversation.Create)
	auth.GET("/conversations", d.Conversation.List)
	auth.GET("/conversations/:conversation_id", d.Conversation.Get)
	auth.DELETE("/conversations/:conversation_id", d.Conversation.Delete)
	auth.POST("/conversations/:conversation_id/complete", d.Conversation.Complete)
	auth.POST("/conversations/:conversation_id/refresh", d.Conversation.Refresh)

	auth.GET("/conversations/:conversation_id/assistant/recommendations", d.Assistant.Recommend)
	auth.POST("/conversations/:conversation_id/assistant/metadata", d.Assistant.Metadata)

	// WebSocket
	auth.GET("/ws/conversation/:conversation_id", d.WS.ConversationWS)
	auth.GET("/ws/chunk/:chunk_id", d.WS.ChunkWS)
}
