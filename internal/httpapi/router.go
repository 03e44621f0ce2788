// Package httpapi exposes a voicegen session over a JSON web API.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voicegen/internal/catalog"
	"github.com/book-expert/voicegen/internal/core"
	"github.com/book-expert/voicegen/internal/session"
	"github.com/book-expert/voicegen/internal/synthesis"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgKeySaved          = "api key saved"
	msgKeySavedNoCatalog = "api key saved, voice list unavailable"
)

const (
	headerRequestID   = "X-Request-ID"
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	// Synthesis plus a slow client must fit inside the write timeout.
	writeTimeout = 2 * time.Minute
)

// Service is the slice of a session the API needs.
type Service interface {
	Configured() bool
	Catalog() *catalog.Catalog
	Generate(ctx context.Context, sel session.Selection) (core.Result, error)
	UpdateCredential(ctx context.Context, key string) (session.CredentialUpdate, error)
}

// VoiceView is one entry of GET /api/voices.
type VoiceView struct {
	Name   string   `json:"name"`
	ID     string   `json:"voice_id"`
	Locale string   `json:"locale"`
	Styles []string `json:"styles"`
}

// SynthesizeResponse is the data of a successful POST /api/synthesize.
type SynthesizeResponse struct {
	AudioURL string `json:"audio_url"`
}

// CredentialRequest is the body of PUT /api/credential.
type CredentialRequest struct {
	APIKey string `json:"api_key"`
}

type handler struct {
	service Service
	log     *logger.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(service Service, log *logger.Logger) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestIDMiddleware())
	engine.Use(loggingMiddleware(log))

	h := &handler{service: service, log: log}

	engine.GET("/health", h.health)

	api := engine.Group("/api")
	api.GET("/voices", h.listVoices)
	api.GET("/voices/:name/styles", h.listStyles)
	api.POST("/synthesize", h.synthesize)
	api.PUT("/credential", h.updateCredential)

	return engine
}

// Serve runs the API on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, engine http.Handler, log *logger.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errChan := make(chan error, 1)

	go func() {
		log.System("HTTP API listening on %s", addr)

		errChan <- server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := server.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}

	return nil
}

func (h *handler) health(c *gin.Context) {
	RespondSuccess(c, http.StatusOK, gin.H{
		"configured": h.service.Configured(),
		"voices":     h.service.Catalog().Len(),
	}, "")
}

func (h *handler) listVoices(c *gin.Context) {
	if !h.service.Configured() {
		RespondError(c, http.StatusServiceUnavailable, session.ErrNotConfigured.Error(), nil)

		return
	}

	voices := h.service.Catalog().Voices()
	views := make([]VoiceView, 0, len(voices))

	for _, voice := range voices {
		views = append(views, VoiceView{
			Name:   voice.DisplayName,
			ID:     voice.ID,
			Locale: voice.Locale,
			Styles: voice.Styles,
		})
	}

	RespondSuccess(c, http.StatusOK, views, "")
}

func (h *handler) listStyles(c *gin.Context) {
	name := c.Param("name")

	if _, ok := h.service.Catalog().Lookup(name); !ok {
		RespondError(c, http.StatusNotFound, fmt.Sprintf("unknown voice %q", name), nil)

		return
	}

	RespondSuccess(c, http.StatusOK, h.service.Catalog().StylesFor(name), "")
}

func (h *handler) synthesize(c *gin.Context) {
	var sel session.Selection

	err := c.ShouldBindJSON(&sel)
	if err != nil {
		RespondError(c, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), nil)

		return
	}

	sel.Pitch = synthesis.ClampPitch(sel.Pitch)

	result, err := h.service.Generate(c.Request.Context(), sel)
	if err != nil {
		status := statusFor(err)

		var data any
		if reason, ok := core.ReasonOf(err); ok {
			data = gin.H{"reason": reason}
		}

		RespondError(c, status, err.Error(), data)

		return
	}

	if !result.OK() {
		RespondError(c, http.StatusBadGateway, result.ErrorDetail, nil)

		return
	}

	RespondSuccess(c, http.StatusOK, SynthesizeResponse{AudioURL: result.AudioURL}, "")
}

func (h *handler) updateCredential(c *gin.Context) {
	var req CredentialRequest

	err := c.ShouldBindJSON(&req)
	if err != nil {
		RespondError(c, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), nil)

		return
	}

	update, err := h.service.UpdateCredential(c.Request.Context(), req.APIKey)
	if err != nil {
		RespondError(c, statusFor(err), err.Error(), gin.H{"configured": h.service.Configured()})

		return
	}

	if update.RefreshErr != nil {
		RespondSuccess(c, http.StatusOK, gin.H{
			"voices":        update.Voices,
			"catalog_error": update.RefreshErr.Error(),
		}, msgKeySavedNoCatalog)

		return
	}

	RespondSuccess(c, http.StatusOK, gin.H{"voices": update.Voices}, msgKeySaved)
}

func statusFor(err error) int {
	var netErr *core.NetworkError

	switch {
	case errors.Is(err, &core.ValidationError{}), errors.Is(err, core.ErrInvalidCredential):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.As(err, &netErr), errors.Is(err, core.ErrProtocolViolation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set(headerRequestID, requestID)
		c.Header(headerRequestID, requestID)
		c.Next()
	}
}

func loggingMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		if log != nil {
			log.Info(
				"[HTTP] %s %s -> %d (%s) id=%s",
				c.Request.Method,
				c.Request.URL.Path,
				c.Writer.Status(),
				time.Since(start),
				c.GetString(headerRequestID),
			)
		}
	}
}
