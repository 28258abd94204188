package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yooscribe/internal/services"
	"github.com/yoockh/yooscribe/internal/utils"
)

type ConversationHandler struct {
	convs services.ConversationService
}

func NewConversationHandler(convs services.ConversationService) *ConversationHandler {
	return &ConversationHandler{convs: convs}
}

type createConversationRequest struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	Language         string `json:"language"`
	TrimSilence      bool   `json:"trim_silence"`
	ChunkIntervalSec int    `json:"chunk_interval_sec"`
	NumSpeakers      int    `json:"num_speakers"`
}

func (h *ConversationHandler) Create(c *gin.Context) {
	const op = "ConversationHandler.Create"

	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid request body", err))
		return
	}

	conv, err := h.convs.Create(c.Request.Context(), services.CreateConversationInput{
		Title:            req.Title,
		Description:      req.Description,
		Language:         req.Language,
		TrimSilence:      req.TrimSilence,
		ChunkIntervalSec: req.ChunkIntervalSec,
		NumSpeakers:      req.NumSpeakers,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *ConversationHandler) Get(c *gin.Context) {
	conv, err := h.convs.Get(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) List(c *gin.Context) {
	limit, offset := pagination(c)
	rows, err := h.convs.List(c.Request.Context(), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": rows})
}

// Complete ends the recording phase; the conversation's status becomes
// derived from its chunks from here on.
func (h *ConversationHandler) Complete(c *gin.Context) {
	conv, err := h.convs.Complete(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// Refresh forces a status re-derivation, useful when a client suspects it
// missed an event.
func (h *ConversationHandler) Refresh(c *gin.Context) {
	id := c.Param("conversation_id")
	if err := h.convs.RefreshStatus(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	conv, err := h.convs.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	if err := h.convs.Delete(c.Request.Context(), c.Param("conversation_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
