package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yooscribe/internal/services"
)

type AssistantHandler struct {
	assistant services.AssistantService
}

func NewAssistantHandler(assistant services.AssistantService) *AssistantHandler {
	return &AssistantHandler{assistant: assistant}
}

// Recommend returns live suggestions for the conversation's latest
// transcribed chunk.
func (h *AssistantHandler) Recommend(c *gin.Context) {
	res, err := h.assistant.Recommend(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Metadata generates a title and description from the full transcript.
func (h *AssistantHandler) Metadata(c *gin.Context) {
	res, err := h.assistant.GenerateMetadata(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
