// Package catalog exposes newsletters, subscriptions, ingested emails, and
// interaction tracking to the HTTP layer.
package catalog

import (
	"context"
	"errors"
	"strings"

	"newsletter_server/adapter/out/persistence"
	"newsletter_server/core/domain"
	"newsletter_server/core/port/in"
	"newsletter_server/core/port/out"
	"newsletter_server/pkg/apperr"
	"newsletter_server/pkg/logger"

	"github.com/google/uuid"
)

const maxSearchResults = 50

// CatalogService implements the catalog use case over the repositories.
type CatalogService struct {
	nlRepo    out.NewsletterRepository
	subRepo   out.SubscriptionRepository
	emailRepo out.EmailRepository
}

func NewCatalogService(nlRepo out.NewsletterRepository, subRepo out.SubscriptionRepository, emailRepo out.EmailRepository) *CatalogService {
	return &CatalogService{nlRepo: nlRepo, subRepo: subRepo, emailRepo: emailRepo}
}

func (s *CatalogService) ListSubscriptions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Subscription, error) {
	subs, err := s.subRepo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperr.DatabaseError("list subscriptions", err)
	}
	return subs, nil
}

// Subscribe creates or reactivates a subscription to an existing
// newsletter. Returns true when a new subscription row was created.
func (s *CatalogService) Subscribe(ctx context.Context, userID uuid.UUID, newsletterID int64) (bool, error) {
	if _, err := s.nlRepo.GetByID(ctx, newsletterID); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return false, apperr.NotFound("newsletter")
		}
		return false, apperr.DatabaseError("get newsletter", err)
	}

	created, err := s.subRepo.Ensure(ctx, userID, newsletterID)
	if err != nil {
		return false, apperr.DatabaseError("subscribe", err)
	}
	if created {
		logger.WithField("user_id", userID.String()).Info("subscribed to newsletter %d", newsletterID)
	}
	return created, nil
}

func (s *CatalogService) Unsubscribe(ctx context.Context, userID uuid.UUID, newsletterID int64) error {
	found, err := s.subRepo.Unsubscribe(ctx, userID, newsletterID)
	if err != nil {
		return apperr.DatabaseError("unsubscribe", err)
	}
	if !found {
		return apperr.NotFound("subscription")
	}
	return nil
}

func (s *CatalogService) ListEmails(ctx context.Context, userID uuid.UUID, newsletterID *int64, limit, offset int) ([]*domain.NewsletterEmail, error) {
	emails, err := s.emailRepo.ListByUser(ctx, userID, newsletterID, limit, offset)
	if err != nil {
		return nil, apperr.DatabaseError("list emails", err)
	}
	return emails, nil
}

// TrackInteraction records engagement with an ingested email. At least one
// interaction field must be present.
func (s *CatalogService) TrackInteraction(ctx context.Context, userID uuid.UUID, emailID int64, interaction domain.Interaction) error {
	if interaction.Opened == nil && interaction.Clicked == nil && interaction.ReadingTime == nil {
		return apperr.InvalidInput("interaction", "at least one of opened, clicked, reading_time is required")
	}

	found, err := s.emailRepo.UpdateInteraction(ctx, emailID, userID, interaction)
	if err != nil {
		return apperr.DatabaseError("track interaction", err)
	}
	if !found {
		return apperr.NotFound("email")
	}
	return nil
}

func (s *CatalogService) Search(ctx context.Context, query string, limit int) ([]*domain.Newsletter, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.InvalidInput("q", "search query is required")
	}
	if limit <= 0 || limit > maxSearchResults {
		limit = maxSearchResults
	}

	results, err := s.nlRepo.Search(ctx, query, limit)
	if err != nil {
		return nil, apperr.DatabaseError("search newsletters", err)
	}
	return results, nil
}

var _ in.CatalogUseCase = (*CatalogService)(nil)
