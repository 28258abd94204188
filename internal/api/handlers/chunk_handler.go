package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yooscribe/internal/services"
	"github.com/yoockh/yooscribe/internal/utils"
)

type ChunkHandler struct {
	chunks services.ChunkService
}

func NewChunkHandler(chunks services.ChunkService) *ChunkHandler {
	return &ChunkHandler{chunks: chunks}
}

// Upload accepts a multipart audio file plus processing options and queues
// it for transcription. Response is the pending chunk; progress arrives via
// the WebSocket stream or polling.
func (h *ChunkHandler) Upload(c *gin.Context) {
	const op = "ChunkHandler.Upload"

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "audio file is required", err))
		return
	}
	defer file.Close()

	in := services.UploadChunkInput{
		ConversationID: c.PostForm("conversation_id"),
		Filename:       header.Filename,
		Audio:          file,
		Title:          c.PostForm("title"),
		Description:    c.PostForm("description"),
		Language:       c.PostForm("language"),
	}

	if v := c.PostForm("trim_silence"); v != "" {
		trim, perr := strconv.ParseBool(v)
		if perr != nil {
			writeError(c, utils.E(utils.CodeInvalidArgument, op, "trim_silence must be a boolean", perr))
			return
		}
		in.TrimSilence = &trim
	}
	if v := c.PostForm("num_speakers"); v != "" {
		n, perr := strconv.Atoi(v)
		if perr != nil {
			writeError(c, utils.E(utils.CodeInvalidArgument, op, "num_speakers must be an integer", perr))
			return
		}
		in.NumSpeakers = &n
	}

	chunk, err := h.chunks.Upload(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, chunk)
}

func (h *ChunkHandler) Get(c *gin.Context) {
	chunk, err := h.chunks.Get(c.Request.Context(), c.Param("chunk_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, chunk)
}

type updateChunkRequest struct {
	Title          *string `json:"title"`
	Description    *string `json:"description"`
	TranscriptText *string `json:"transcript_text"`
}

// Update edits user-owned metadata; absent fields stay untouched.
func (h *ChunkHandler) Update(c *gin.Context) {
	const op = "ChunkHandler.Update"

	var req updateChunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid request body", err))
		return
	}

	chunk, err := h.chunks.Update(c.Request.Context(), c.Param("chunk_id"), services.UpdateChunkInput{
		Title:          req.Title,
		Description:    req.Description,
		TranscriptText: req.TranscriptText,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, chunk)
}

func (h *ChunkHandler) ListStandalone(c *gin.Context) {
	limit, offset := pagination(c)
	rows, err := h.chunks.ListStandalone(c.Request.Context(), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chunks": rows})
}

func (h *ChunkHandler) Retry(c *gin.Context) {
	chunk, err := h.chunks.Retry(c.Request.Context(), c.Param("chunk_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, chunk)
}

func (h *ChunkHandler) Delete(c *gin.Context) {
	if err := h.chunks.Delete(c.Request.Context(), c.Param("chunk_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Events exposes the chunk's pipeline stage timeline for debugging.
func (h *ChunkHandler) Events(c *gin.Context) {
	limit, _ := pagination(c)
	rows, err := h.chunks.Events(c.Request.Context(), c.Param("chunk_id"), int64(limit))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": rows})
}

// Transcript serves the rendered transcript as plain text.
func (h *ChunkHandler) Transcript(c *gin.Context) {
	rc, err := h.chunks.Transcript(c.Request.Context(), c.Param("chunk_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	defer rc.Close()

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, rc)
}
