package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"echogate/internal/apperr"
	"echogate/internal/auth"
	"echogate/internal/config"
	"echogate/internal/metrics"
	"echogate/internal/models"
	"echogate/internal/service/assistant"
	"echogate/internal/service/completion"
)

// Handler wires HTTP routes to the gateway service.
type Handler struct {
	assistant *assistant.Service
	gate      *auth.Gate
	assembler *completion.Assembler
	encoder   *completion.Encoder
	recorder  *metrics.Recorder
	modelID   string
	owner     string
}

// NewHandler constructs a Handler instance. recorder may be nil.
func NewHandler(cfg *config.Config, service *assistant.Service, gate *auth.Gate, recorder *metrics.Recorder) *Handler {
	return &Handler{
		assistant: service,
		gate:      gate,
		assembler: completion.NewAssembler(),
		encoder:   completion.NewEncoder(cfg.BasicConfig.ChunkSize),
		recorder:  recorder,
		modelID:   cfg.BasicConfig.ModelID,
		owner:     cfg.BasicConfig.ModelOwner,
	}
}

// RegisterRoutes attaches all HTTP routes to the router. CORS runs first so
// preflight requests never reach the auth gate.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware(), h.gate.Middleware())

	router.GET("/health", h.health)
	router.GET("/openapi.json", h.openAPI)
	router.GET("/docs", h.docsRedirect)
	router.GET("/redoc", h.docsRedirect)

	v1 := router.Group("/v1")
	v1.GET("/models", h.listModels)
	v1.POST("/chat/completions", h.chatCompletions)
	v1.GET("/logs", h.listLogs)
	v1.DELETE("/logs/:id", h.deleteLog)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, models.ModelList{
		Object: "list",
		Data: []models.ModelDescriptor{{
			ID:      h.modelID,
			Object:  "model",
			Created: time.Now().Unix(),
			OwnedBy: h.owner,
		}},
	})
}

func (h *Handler) chatCompletions(c *gin.Context) {
	start := time.Now()
	var req models.ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.recordChat(c, &req, start, apperr.CodeInvalidRequest)
		writeError(c, apperr.Wrap(apperr.KindValidation, apperr.CodeInvalidRequest, "invalid request body", err))
		return
	}

	result, err := h.assistant.Complete(c.Request.Context(), &req)
	if err != nil {
		h.recordChat(c, &req, start, apperr.As(err).Code)
		writeError(c, err)
		return
	}
	h.recordChat(c, &req, start, "ok")

	if !req.Stream {
		c.PureJSON(http.StatusOK, h.assembler.Assemble(result.Model, result.Content))
		return
	}
	h.stream(c, result)
}

// stream writes the chunk frames, flushing each one. The exchange is already
// persisted, so a client that goes away only stops further frames.
func (h *Handler) stream(c *gin.Context, result *assistant.Result) {
	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	for frame := range h.encoder.Frames(result.Model, result.Content) {
		if ctx.Err() != nil {
			logrus.WithField("log_id", result.Log.ID).Debug("client disconnected mid-stream")
			return
		}
		if _, err := c.Writer.Write(frame); err != nil {
			if !errors.Is(err, io.ErrClosedPipe) {
				logrus.WithError(err).Warn("write stream frame")
			}
			return
		}
		c.Writer.Flush()
	}
}

func (h *Handler) recordChat(c *gin.Context, req *models.ChatCompletionRequest, start time.Time, status string) {
	h.recorder.RecordChat(c.Request.Context(), req.Model, req.Stream, status, time.Since(start))
}

func (h *Handler) listLogs(c *gin.Context) {
	limit := assistant.DefaultLogLimit
	if raw, ok := c.GetQuery("limit"); ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(c, apperr.InvalidRequest("limit must be an integer between 1 and 100"))
			return
		}
		limit = n
	}
	logs, err := h.assistant.ListLogs(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": logs})
}

func (h *Handler) deleteLog(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		writeError(c, apperr.InvalidRequest("log id must be an integer"))
		return
	}
	if err := h.assistant.DeleteLog(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "id": id})
}
