package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yooscribe/internal/services"
)

// MetaHandler answers the recorder UI's capability probes so it can hide
// controls for backends that are not configured.
type MetaHandler struct {
	diarization bool
	assistant   bool
}

func NewMetaHandler(diarization, assistant bool) *MetaHandler {
	return &MetaHandler{diarization: diarization, assistant: assistant}
}

func (h *MetaHandler) Languages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"languages": services.SupportedLanguages()})
}

func (h *MetaHandler) Capabilities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"diarization":  h.diarization,
		"assistant":    h.assistant,
		"max_speakers": 10,
	})
}
