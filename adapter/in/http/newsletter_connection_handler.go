package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"newsletter_server/core/domain"
	"newsletter_server/core/port/in"
	"newsletter_server/pkg/apperr"
	"newsletter_server/pkg/logger"
	"newsletter_server/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// OAuthStateStore validates single-use OAuth states (CSRF protection).
type OAuthStateStore interface {
	StoreState(ctx context.Context, state string, userID uuid.UUID) error
	ValidateState(ctx context.Context, state string) (uuid.UUID, error)
}

// ConnectionHandler serves the mailbox connection lifecycle: OAuth
// authorize/callback, status, sync trigger, disconnect.
type ConnectionHandler struct {
	connUC in.ConnectionUseCase
	syncUC in.SyncUseCase
	states OAuthStateStore
}

func NewConnectionHandler(connUC in.ConnectionUseCase, syncUC in.SyncUseCase, states OAuthStateStore) *ConnectionHandler {
	return &ConnectionHandler{connUC: connUC, syncUC: syncUC, states: states}
}

// Register mounts the authenticated routes. The OAuth callback is mounted
// separately because the provider redirect carries no bearer token. The sync
// trigger takes extra middleware (rate limiting) ahead of the handler.
func (h *ConnectionHandler) Register(router fiber.Router, syncMiddleware ...fiber.Handler) {
	mail := router.Group("/mail")
	mail.Get("/oauth/authorize", h.Authorize)
	mail.Get("/connection", h.GetConnection)
	mail.Delete("/disconnect", h.Disconnect)
	mail.Post("/sync", append(syncMiddleware, h.StartSync)...)
}

// RegisterCallback mounts the unauthenticated provider redirect target.
func (h *ConnectionHandler) RegisterCallback(router fiber.Router) {
	router.Get("/mail/oauth/callback", h.Callback)
}

func generateSecureState() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// Authorize prepares a single-use state and returns the provider
// authorization URL.
func (h *ConnectionHandler) Authorize(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	if h.states == nil {
		return apperr.New(apperr.CodeInternalError, "OAuth state storage unavailable", fiber.StatusServiceUnavailable)
	}

	state, err := generateSecureState()
	if err != nil {
		return apperr.InternalWithError(err)
	}
	if err := h.states.StoreState(c.Context(), state, userID); err != nil {
		return apperr.InternalWithError(err)
	}

	return response.OK(c, fiber.Map{
		"authorization_url": h.connUC.AuthURL(state),
		"state":             state,
	})
}

// Callback is the provider redirect target: it validates the state,
// exchanges the code, and reports the resulting connection.
func (h *ConnectionHandler) Callback(c *fiber.Ctx) error {
	if errParam := c.Query("error"); errParam != "" {
		logger.Warn("oauth callback returned error: %s", errParam)
		return apperr.New(apperr.CodeOAuthFailed, "authorization was denied", fiber.StatusBadRequest)
	}

	code := c.Query("code")
	if code == "" {
		return apperr.InvalidInput("code", "authorization code is required")
	}
	state := c.Query("state")
	if state == "" {
		return apperr.InvalidInput("state", "state is required")
	}

	if h.states == nil {
		return apperr.New(apperr.CodeInternalError, "OAuth state storage unavailable", fiber.StatusServiceUnavailable)
	}
	userID, err := h.states.ValidateState(c.Context(), state)
	if err != nil {
		logger.WithError(err).Warn("oauth state validation failed")
		return apperr.New(apperr.CodeOAuthFailed, "invalid or expired state", fiber.StatusBadRequest)
	}

	conn, err := h.connUC.HandleCallback(c.Context(), userID, code)
	if err != nil {
		logger.WithError(err).Error("oauth callback failed for user %s", userID)
		return apperr.OAuthFailed("google", err)
	}
	return response.OK(c, conn)
}

func (h *ConnectionHandler) GetConnection(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	conn, err := h.connUC.GetConnection(c.Context(), userID)
	if err != nil {
		return err
	}
	return response.OK(c, conn)
}

func (h *ConnectionHandler) Disconnect(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	if err := h.connUC.Disconnect(c.Context(), userID); err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"disconnected": true})
}

// StartSync claims the sync slot and acknowledges immediately; the run
// itself happens in the background.
func (h *ConnectionHandler) StartSync(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	var opts domain.SyncOptions
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&opts); err != nil {
			return apperr.BadRequest("invalid sync options")
		}
	}

	startedAt, err := h.syncUC.Start(c.Context(), userID, opts)
	if err != nil {
		return err
	}

	return response.OK(c, fiber.Map{
		"status":               "started",
		"emails_processed":     0,
		"newsletters_detected": 0,
		"new_newsletters":      0,
		"sync_started_at":      startedAt.Format(time.RFC3339),
	})
}
