// Package ingest implements the sync orchestrator: it claims the
// single-flight slot, walks the mailbox, classifies messages, and persists
// newsletters, subscriptions, and emails.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"newsletter_server/adapter/out/persistence"
	"newsletter_server/core/domain"
	"newsletter_server/core/port/in"
	"newsletter_server/core/port/out"
	"newsletter_server/core/service/auth"
	"newsletter_server/core/service/detect"
	"newsletter_server/pkg/apperr"
	"newsletter_server/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// CredentialSource yields valid OAuth tokens for a connection, refreshing
// as needed.
type CredentialSource interface {
	Token(ctx context.Context, conn *domain.MailConnection) (*oauth2.Token, error)
}

// runTimeout bounds an in-process fallback run when no message broker is
// configured.
const runTimeout = 10 * time.Minute

// SyncService drives ingestion runs end to end.
type SyncService struct {
	connRepo   out.ConnectionRepository
	nlRepo     out.NewsletterRepository
	subRepo    out.SubscriptionRepository
	emailRepo  out.EmailRepository
	bodyStore  out.BodyStore // nil disables body archiving
	factory    out.MailboxFactory
	creds      CredentialSource
	classifier *detect.Classifier
	extractor  *detect.Extractor
	producer   out.MessageProducer // nil falls back to in-process runs
	staleAfter time.Duration
}

func NewSyncService(
	connRepo out.ConnectionRepository,
	nlRepo out.NewsletterRepository,
	subRepo out.SubscriptionRepository,
	emailRepo out.EmailRepository,
	bodyStore out.BodyStore,
	factory out.MailboxFactory,
	creds CredentialSource,
	producer out.MessageProducer,
	staleAfter time.Duration,
) *SyncService {
	return &SyncService{
		connRepo:   connRepo,
		nlRepo:     nlRepo,
		subRepo:    subRepo,
		emailRepo:  emailRepo,
		bodyStore:  bodyStore,
		factory:    factory,
		creds:      creds,
		classifier: detect.NewClassifier(),
		extractor:  detect.NewExtractor(),
		producer:   producer,
		staleAfter: staleAfter,
	}
}

// Start validates the connection, claims the single-flight slot via the
// atomic status transition, and schedules the run in the background.
func (s *SyncService) Start(ctx context.Context, userID uuid.UUID, opts domain.SyncOptions) (time.Time, error) {
	opts = opts.Normalize()

	conn, err := s.connRepo.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return time.Time{}, apperr.NotConnected()
		}
		return time.Time{}, apperr.DatabaseError("get connection", err)
	}
	if !conn.CanStartSync() {
		if conn.Status == domain.ConnectionSyncing {
			return time.Time{}, apperr.SyncInProgress()
		}
		return time.Time{}, apperr.NotConnected()
	}

	claimed, err := s.connRepo.BeginSync(ctx, userID)
	if err != nil {
		return time.Time{}, apperr.DatabaseError("begin sync", err)
	}
	if !claimed {
		return time.Time{}, apperr.SyncInProgress()
	}

	startedAt := time.Now()
	if s.producer != nil {
		job := &out.MailboxSyncJob{
			UserID:    userID.String(),
			Options:   opts,
			Requested: startedAt.Format(time.RFC3339),
		}
		pubErr := s.producer.PublishMailboxSync(ctx, job)
		if pubErr == nil {
			return startedAt, nil
		}
		logger.WithError(pubErr).Warn("sync job publish failed, running in-process")
	}

	// No broker (or publish failed): run in the background of this process.
	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if _, err := s.Run(runCtx, userID, opts); err != nil {
			logger.WithError(err).WithField("user_id", userID.String()).Error("background sync failed")
		}
	}()

	return startedAt, nil
}

// Run executes one full ingestion run. The connection is expected to be in
// status syncing already (claimed by Start); on any fatal failure the
// status is moved to error or expired with a human-readable message.
func (s *SyncService) Run(ctx context.Context, userID uuid.UUID, opts domain.SyncOptions) (*domain.SyncRun, error) {
	opts = opts.Normalize()
	run := &domain.SyncRun{StartedAt: time.Now()}
	log := logger.WithField("user_id", userID.String())

	conn, err := s.connRepo.GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}

	token, err := s.creds.Token(ctx, conn)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			s.failRun(ctx, userID, domain.ConnectionExpired, "Authentication expired, please reconnect your mailbox")
			return nil, err
		}
		s.failRun(ctx, userID, domain.ConnectionError, "Authentication failed")
		return nil, err
	}

	mailbox, err := s.factory.Open(ctx, token)
	if err != nil {
		s.failRun(ctx, userID, domain.ConnectionError, "Failed to open mailbox")
		return nil, err
	}

	messages, listErrors, err := mailbox.ListMessages(ctx, out.ListOptions{
		DaysBack:   opts.DaysBack,
		MaxResults: opts.MaxEmails,
	})
	if err != nil {
		s.failRun(ctx, userID, domain.ConnectionError, "Failed to list mailbox messages")
		return nil, err
	}
	run.Errors = append(run.Errors, listErrors...)

	for _, msg := range messages {
		run.EmailsProcessed++

		score, _ := s.classifier.Score(msg)
		if score < detect.NewsletterThreshold {
			continue
		}
		// Every message that crosses the threshold counts, not just the
		// first one per sender.
		run.NewslettersDetected++

		if err := s.ingestMessage(ctx, userID, msg, run); err != nil {
			run.Errors = append(run.Errors, domain.MessageError{
				ExternalID: msg.ExternalID,
				Stage:      "persist",
				Reason:     err.Error(),
			})
		}
	}

	if err := s.connRepo.FinishSync(ctx, userID, time.Now()); err != nil {
		log.WithError(err).Error("failed to finalize sync status")
	}
	run.FinishedAt = time.Now()

	log.WithFields(map[string]any{
		"emails_processed":     run.EmailsProcessed,
		"newsletters_detected": run.NewslettersDetected,
		"new_newsletters":      run.NewNewsletters,
		"duplicates_skipped":   run.DuplicatesSkipped,
		"errors":               len(run.Errors),
	}).Info("sync run finished")

	return run, nil
}

// ingestMessage persists one classified message: catalog upsert,
// subscription, email row, counters, and the optional body archive.
func (s *SyncService) ingestMessage(ctx context.Context, userID uuid.UUID, msg *domain.MailMessage, run *domain.SyncRun) error {
	meta := s.extractor.Extract(msg)

	newsletter, err := s.nlRepo.UpsertBySender(ctx, meta, msg.ReceivedAt)
	if err != nil {
		return fmt.Errorf("newsletter upsert: %w", err)
	}

	created, err := s.subRepo.Ensure(ctx, userID, newsletter.ID)
	if err != nil {
		return fmt.Errorf("subscription: %w", err)
	}
	if created {
		run.NewNewsletters++
	}

	inserted, err := s.emailRepo.Insert(ctx, buildEmail(userID, newsletter.ID, msg))
	if err != nil {
		return fmt.Errorf("email insert: %w", err)
	}
	if !inserted {
		run.DuplicatesSkipped++
		return nil
	}

	if err := s.subRepo.RecordEmail(ctx, userID, newsletter.ID, msg.ReceivedAt); err != nil {
		return fmt.Errorf("subscription counter: %w", err)
	}

	// Body archiving is best-effort; the run never fails on it.
	if s.bodyStore != nil && (msg.BodyText != "" || msg.BodyHTML != "") {
		if err := s.bodyStore.Save(ctx, userID, msg.ExternalID, msg.BodyText, msg.BodyHTML); err != nil {
			logger.WithError(err).Warn("failed to archive body for message %s", msg.ExternalID)
		}
	}
	return nil
}

// RecoverStale moves connections stuck in syncing past the stale window to
// error so users can retry. Called periodically by the worker watchdog.
func (s *SyncService) RecoverStale(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.staleAfter)
	stale, err := s.connRepo.ListStaleSyncing(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale connections: %w", err)
	}

	recovered := 0
	for _, conn := range stale {
		if err := s.connRepo.UpdateStatus(ctx, conn.UserID, domain.ConnectionError, "sync timed out"); err != nil {
			logger.WithError(err).Error("failed to recover stale sync for user %s", conn.UserID)
			continue
		}
		recovered++
	}
	if recovered > 0 {
		logger.Warn("recovered %d stale sync(s)", recovered)
	}
	return recovered, nil
}

func (s *SyncService) failRun(ctx context.Context, userID uuid.UUID, status domain.ConnectionStatus, message string) {
	if err := s.connRepo.UpdateStatus(ctx, userID, status, message); err != nil {
		logger.WithError(err).Error("failed to record sync failure for user %s", userID)
	}
}

func buildEmail(userID uuid.UUID, newsletterID int64, msg *domain.MailMessage) *domain.NewsletterEmail {
	return &domain.NewsletterEmail{
		UserID:        userID,
		NewsletterID:  newsletterID,
		ExternalID:    msg.ExternalID,
		ThreadID:      msg.ThreadID,
		Subject:       msg.Subject,
		SenderEmail:   msg.FromEmail,
		SenderName:    msg.FromName,
		Snippet:       msg.Snippet,
		ContentLength: len(msg.BodyText),
		Labels:        msg.Labels,
		ReceivedAt:    msg.ReceivedAt,
		Relevance:     domain.DefaultBaseRelevance,
	}
}

var _ in.SyncUseCase = (*SyncService)(nil)
