// Package auth implements the mailbox credential manager: OAuth
// authorization, token exchange, and transparent refresh.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"newsletter_server/adapter/out/persistence"
	"newsletter_server/core/domain"
	"newsletter_server/core/port/in"
	"newsletter_server/core/port/out"
	"newsletter_server/pkg/apperr"
	"newsletter_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrTokenExpired is returned when a refresh token has been revoked or has
// expired; the user must re-authorize.
var ErrTokenExpired = errors.New("oauth token expired, re-authorization required")

// refreshWindow triggers an early refresh when the access token is about
// to expire mid-run.
const refreshWindow = 5 * time.Minute

const userinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// Scopes: read-only mailbox access plus the email identity needed to name
// the connection.
var gmailScopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/userinfo.email",
}

// OAuthService owns the token lifecycle for mailbox connections.
type OAuthService struct {
	config   *oauth2.Config
	connRepo out.ConnectionRepository
}

func NewOAuthService(clientID, clientSecret, redirectURL string, connRepo out.ConnectionRepository) *OAuthService {
	return &OAuthService{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       gmailScopes,
			Endpoint:     google.Endpoint,
		},
		connRepo: connRepo,
	}
}

// Config exposes the OAuth client configuration for provider factories.
func (s *OAuthService) Config() *oauth2.Config {
	return s.config
}

// AuthURL builds the provider authorization URL. Offline access with a
// forced consent prompt so a refresh token is always issued.
func (s *OAuthService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// HandleCallback exchanges the authorization code and creates/updates the
// user's connection in status connected.
func (s *OAuthService) HandleCallback(ctx context.Context, userID uuid.UUID, code string) (*domain.MailConnection, error) {
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}

	email, err := s.fetchEmail(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve mailbox address: %w", err)
	}

	now := time.Now()
	conn := &domain.MailConnection{
		UserID:       userID,
		Provider:     domain.ProviderGoogle,
		EmailAddress: email,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Status:       domain.ConnectionConnected,
		MaxEmails:    domain.DefaultSyncMaxEmails,
		DaysBack:     domain.DefaultSyncDaysBack,
		ConnectedAt:  now,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		conn.TokenExpiry = &expiry
	}

	saved, err := s.connRepo.Upsert(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to save connection: %w", err)
	}

	logger.WithField("user_id", userID.String()).Info("mailbox connected: %s", email)
	return saved, nil
}

// Token returns a valid OAuth token for the connection, refreshing it when
// expiry is within the refresh window. Refreshed tokens are persisted so
// they survive the run.
func (s *OAuthService) Token(ctx context.Context, conn *domain.MailConnection) (*oauth2.Token, error) {
	token := &oauth2.Token{
		AccessToken:  conn.AccessToken,
		RefreshToken: conn.RefreshToken,
	}
	if conn.TokenExpiry != nil {
		token.Expiry = *conn.TokenExpiry
	}

	needsRefresh := !token.Expiry.IsZero() && time.Until(token.Expiry) < refreshWindow
	if !needsRefresh {
		return token, nil
	}
	if conn.RefreshToken == "" {
		return nil, ErrTokenExpired
	}

	refreshed, err := s.config.TokenSource(ctx, token).Token()
	if err != nil {
		if isTokenRevokedError(err) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}

	// Google may omit the refresh token on refresh responses
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = conn.RefreshToken
	}

	var expiry *time.Time
	if !refreshed.Expiry.IsZero() {
		e := refreshed.Expiry
		expiry = &e
	}
	if err := s.connRepo.UpdateTokens(ctx, conn.ID, refreshed.AccessToken, refreshed.RefreshToken, expiry); err != nil {
		logger.WithError(err).Warn("failed to persist refreshed token for connection %d", conn.ID)
	}

	conn.AccessToken = refreshed.AccessToken
	conn.RefreshToken = refreshed.RefreshToken
	conn.TokenExpiry = expiry

	return refreshed, nil
}

// GetConnection returns the user's connection.
func (s *OAuthService) GetConnection(ctx context.Context, userID uuid.UUID) (*domain.MailConnection, error) {
	conn, err := s.connRepo.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, apperr.NotFound("mail connection")
		}
		return nil, apperr.DatabaseError("get connection", err)
	}
	return conn, nil
}

// Disconnect clears the stored tokens and marks the connection
// disconnected. The catalog and ingested emails are left untouched.
func (s *OAuthService) Disconnect(ctx context.Context, userID uuid.UUID) error {
	found, err := s.connRepo.Disconnect(ctx, userID)
	if err != nil {
		return apperr.DatabaseError("disconnect", err)
	}
	if !found {
		return apperr.NotFound("mail connection")
	}
	logger.WithField("user_id", userID.String()).Info("mailbox disconnected")
	return nil
}

// fetchEmail resolves the mailbox address via the userinfo endpoint.
func (s *OAuthService) fetchEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	client := s.config.Client(ctx, token)
	resp, err := client.Get(userinfoURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, string(body))
	}

	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	if info.Email == "" {
		return "", errors.New("userinfo response missing email")
	}
	return info.Email, nil
}

var _ in.ConnectionUseCase = (*OAuthService)(nil)

// isTokenRevokedError detects unrecoverable refresh failures.
func isTokenRevokedError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "invalid_grant") ||
		strings.Contains(msg, "token has been expired or revoked") ||
		strings.Contains(msg, "token_expired")
}
