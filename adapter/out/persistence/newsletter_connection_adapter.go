package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"newsletter_server/core/domain"
	"newsletter_server/core/port/out"
	"newsletter_server/pkg/crypto"
	"newsletter_server/pkg/logger"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ConnectionRepository implements out.ConnectionRepository.
// Tokens are encrypted at rest; encryption and decryption happen at this
// boundary only, never in the services.
type ConnectionRepository struct {
	db *sqlx.DB
}

func NewConnectionRepository(db *sqlx.DB) out.ConnectionRepository {
	return &ConnectionRepository{db: db}
}

type connectionRow struct {
	ID           int64          `db:"id"`
	UserID       uuid.UUID      `db:"user_id"`
	Provider     string         `db:"provider"`
	EmailAddress string         `db:"email_address"`
	AccessToken  sql.NullString `db:"access_token"`
	RefreshToken sql.NullString `db:"refresh_token"`
	TokenExpiry  sql.NullTime   `db:"token_expiry"`
	Status       string         `db:"status"`
	LastSyncAt   sql.NullTime   `db:"last_sync_at"`
	LastError    sql.NullString `db:"last_error"`
	MaxEmails    int            `db:"max_emails"`
	DaysBack     int            `db:"days_back"`
	ConnectedAt  time.Time      `db:"connected_at"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

const connectionColumns = `
	id, user_id, provider, email_address, access_token, refresh_token,
	token_expiry, status, last_sync_at, last_error, max_emails, days_back,
	connected_at, created_at, updated_at`

func (r *connectionRow) toEntity() *domain.MailConnection {
	conn := &domain.MailConnection{
		ID:           r.ID,
		UserID:       r.UserID,
		Provider:     domain.MailProvider(r.Provider),
		EmailAddress: r.EmailAddress,
		AccessToken:  decryptToken(r.AccessToken.String),
		RefreshToken: decryptToken(r.RefreshToken.String),
		Status:       domain.ConnectionStatus(r.Status),
		LastError:    r.LastError.String,
		MaxEmails:    r.MaxEmails,
		DaysBack:     r.DaysBack,
		ConnectedAt:  r.ConnectedAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.TokenExpiry.Valid {
		t := r.TokenExpiry.Time
		conn.TokenExpiry = &t
	}
	if r.LastSyncAt.Valid {
		t := r.LastSyncAt.Time
		conn.LastSyncAt = &t
	}
	return conn
}

// decryptToken tolerates legacy plaintext rows written before encryption
// was introduced.
func decryptToken(stored string) string {
	if stored == "" {
		return ""
	}
	if !crypto.IsEncrypted(stored) {
		return stored
	}
	plain, err := crypto.DecryptToken(stored)
	if err != nil {
		logger.WithError(err).Error("failed to decrypt stored token")
		return ""
	}
	return plain
}

func encryptToken(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	return crypto.EncryptToken(plain)
}

func (r *ConnectionRepository) GetByUser(ctx context.Context, userID uuid.UUID) (*domain.MailConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM mail_connections WHERE user_id = $1`

	var row connectionRow
	if err := r.db.GetContext(ctx, &row, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get connection: %w", err)
	}
	return row.toEntity(), nil
}

func (r *ConnectionRepository) Upsert(ctx context.Context, conn *domain.MailConnection) (*domain.MailConnection, error) {
	accessToken, err := encryptToken(conn.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt access token: %w", err)
	}
	refreshToken, err := encryptToken(conn.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt refresh token: %w", err)
	}

	query := `
		INSERT INTO mail_connections (
			user_id, provider, email_address, access_token, refresh_token,
			token_expiry, status, last_error, max_emails, days_back, connected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, '', $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			provider = EXCLUDED.provider,
			email_address = EXCLUDED.email_address,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expiry = EXCLUDED.token_expiry,
			status = EXCLUDED.status,
			last_error = '',
			connected_at = EXCLUDED.connected_at,
			updated_at = NOW()
		RETURNING ` + connectionColumns

	var row connectionRow
	err = r.db.GetContext(ctx, &row, query,
		conn.UserID, conn.Provider, conn.EmailAddress, accessToken, refreshToken,
		conn.TokenExpiry, conn.Status, conn.MaxEmails, conn.DaysBack, conn.ConnectedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert connection: %w", err)
	}
	return row.toEntity(), nil
}

func (r *ConnectionRepository) UpdateStatus(ctx context.Context, userID uuid.UUID, status domain.ConnectionStatus, lastError string) error {
	query := `
		UPDATE mail_connections
		SET status = $2, last_error = $3, updated_at = NOW()
		WHERE user_id = $1`

	if _, err := r.db.ExecContext(ctx, query, userID, status, lastError); err != nil {
		return fmt.Errorf("update connection status: %w", err)
	}
	return nil
}

// BeginSync is the single-flight guard: the conditional update claims the
// syncing slot atomically, so two concurrent starts can never both win.
func (r *ConnectionRepository) BeginSync(ctx context.Context, userID uuid.UUID) (bool, error) {
	query := `
		UPDATE mail_connections
		SET status = 'syncing', last_error = '', updated_at = NOW()
		WHERE user_id = $1 AND status IN ('connected', 'error', 'expired')`

	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("begin sync: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("begin sync rows: %w", err)
	}
	return affected > 0, nil
}

func (r *ConnectionRepository) FinishSync(ctx context.Context, userID uuid.UUID, syncedAt time.Time) error {
	query := `
		UPDATE mail_connections
		SET status = 'connected', last_sync_at = $2, last_error = '', updated_at = NOW()
		WHERE user_id = $1`

	if _, err := r.db.ExecContext(ctx, query, userID, syncedAt); err != nil {
		return fmt.Errorf("finish sync: %w", err)
	}
	return nil
}

func (r *ConnectionRepository) UpdateTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiry *time.Time) error {
	encAccess, err := encryptToken(accessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	encRefresh, err := encryptToken(refreshToken)
	if err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}

	query := `
		UPDATE mail_connections
		SET access_token = $2, refresh_token = $3, token_expiry = $4, updated_at = NOW()
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, encAccess, encRefresh, expiry); err != nil {
		return fmt.Errorf("update tokens: %w", err)
	}
	return nil
}

func (r *ConnectionRepository) Disconnect(ctx context.Context, userID uuid.UUID) (bool, error) {
	query := `
		UPDATE mail_connections
		SET status = 'disconnected', access_token = '', refresh_token = '',
		    token_expiry = NULL, last_error = '', updated_at = NOW()
		WHERE user_id = $1`

	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("disconnect: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("disconnect rows: %w", err)
	}
	return affected > 0, nil
}

func (r *ConnectionRepository) ListStaleSyncing(ctx context.Context, cutoff time.Time) ([]*domain.MailConnection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM mail_connections
		WHERE status = 'syncing' AND updated_at < $1`

	var rows []connectionRow
	if err := r.db.SelectContext(ctx, &rows, query, cutoff); err != nil {
		return nil, fmt.Errorf("list stale syncing: %w", err)
	}

	conns := make([]*domain.MailConnection, len(rows))
	for i := range rows {
		conns[i] = rows[i].toEntity()
	}
	return conns, nil
}
