package worker

import (
	"context"
	"fmt"

	"newsletter_server/core/port/in"
	"newsletter_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Handler routes stream messages to the use cases.
type Handler struct {
	syncUC in.SyncUseCase
}

func NewHandler(syncUC in.SyncUseCase) *Handler {
	return &Handler{syncUC: syncUC}
}

func (h *Handler) Process(ctx context.Context, msg *Message) error {
	logger.Debug("processing job %s (%s)", msg.ID, msg.Type)

	switch msg.Type {
	case JobMailboxSync:
		return h.processMailboxSync(ctx, msg)
	case JobStaleRecovery:
		_, err := h.syncUC.RecoverStale(ctx)
		return err
	default:
		logger.Warn("unknown job type: %s", msg.Type)
		return nil
	}
}

func (h *Handler) processMailboxSync(ctx context.Context, msg *Message) error {
	payload, err := ParsePayload[MailboxSyncPayload](msg)
	if err != nil {
		return fmt.Errorf("invalid mailbox sync payload: %w", err)
	}

	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", payload.UserID, err)
	}

	run, err := h.syncUC.Run(ctx, userID, payload.Options)
	if err != nil {
		return err
	}

	logger.WithFields(map[string]any{
		"user_id":              payload.UserID,
		"emails_processed":     run.EmailsProcessed,
		"newsletters_detected": run.NewslettersDetected,
	}).Info("mailbox sync job done")
	return nil
}

// ParsePayload converts the generic payload map into a typed payload.
func ParsePayload[T any](msg *Message) (*T, error) {
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, err
	}
	var payload T
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
