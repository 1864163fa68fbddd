package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConnectionStatus is the lifecycle state of a mailbox connection.
type ConnectionStatus string

const (
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionSyncing      ConnectionStatus = "syncing"
	ConnectionError        ConnectionStatus = "error"
	// ConnectionExpired is raised when a token refresh fails; the user must
	// re-authorize.
	ConnectionExpired ConnectionStatus = "expired"
)

// MailProvider identifies the remote mailbox provider.
type MailProvider string

const ProviderGoogle MailProvider = "google"

// MailConnection is a user's authorized link to a remote mailbox.
// Exactly one connection exists per user.
type MailConnection struct {
	ID           int64            `json:"id"`
	UserID       uuid.UUID        `json:"user_id"`
	Provider     MailProvider     `json:"provider"`
	EmailAddress string           `json:"email_address"`
	AccessToken  string           `json:"-"`
	RefreshToken string           `json:"-"`
	TokenExpiry  *time.Time       `json:"-"`
	Status       ConnectionStatus `json:"status"`
	LastSyncAt   *time.Time       `json:"last_sync_at,omitempty"`
	LastError    string           `json:"last_error,omitempty"`
	MaxEmails    int              `json:"max_emails"`
	DaysBack     int              `json:"days_back"`
	ConnectedAt  time.Time        `json:"connected_at"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// CanStartSync reports whether a sync may be started from the current
// state. Syncing is excluded (single-flight), disconnected has no tokens.
func (c *MailConnection) CanStartSync() bool {
	switch c.Status {
	case ConnectionConnected, ConnectionError, ConnectionExpired:
		return true
	default:
		return false
	}
}
