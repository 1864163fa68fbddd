package domain

import "time"

// Sync option bounds. Requests outside the bounds are clamped, not rejected.
const (
	SyncMaxEmailsFloor = 1
	SyncMaxEmailsCeil  = 500
	SyncDaysBackFloor  = 1
	SyncDaysBackCeil   = 30

	DefaultSyncMaxEmails = 100
	DefaultSyncDaysBack  = 7
)

// SyncOptions parameterizes one sync run.
type SyncOptions struct {
	MaxEmails int  `json:"max_emails"`
	DaysBack  int  `json:"days_back"`
	ForceSync bool `json:"force_sync"`
}

// Normalize applies defaults and clamps values into their allowed ranges.
func (o SyncOptions) Normalize() SyncOptions {
	if o.MaxEmails == 0 {
		o.MaxEmails = DefaultSyncMaxEmails
	}
	if o.DaysBack == 0 {
		o.DaysBack = DefaultSyncDaysBack
	}
	if o.MaxEmails < SyncMaxEmailsFloor {
		o.MaxEmails = SyncMaxEmailsFloor
	}
	if o.MaxEmails > SyncMaxEmailsCeil {
		o.MaxEmails = SyncMaxEmailsCeil
	}
	if o.DaysBack < SyncDaysBackFloor {
		o.DaysBack = SyncDaysBackFloor
	}
	if o.DaysBack > SyncDaysBackCeil {
		o.DaysBack = SyncDaysBackCeil
	}
	return o
}

// MessageError is a per-message failure recorded in the run summary.
// Failures are isolated: one bad message never aborts the run.
type MessageError struct {
	ExternalID string `json:"external_id"`
	Stage      string `json:"stage"` // fetch, extract, persist
	Reason     string `json:"reason"`
}

// SyncRun summarizes one completed (or failed) sync run.
type SyncRun struct {
	EmailsProcessed     int            `json:"emails_processed"`
	NewslettersDetected int            `json:"newsletters_detected"`
	NewNewsletters      int            `json:"new_newsletters"`
	DuplicatesSkipped   int            `json:"duplicates_skipped"`
	Errors              []MessageError `json:"errors,omitempty"`
	StartedAt           time.Time      `json:"started_at"`
	FinishedAt          time.Time      `json:"finished_at"`
}
