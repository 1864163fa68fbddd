package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"newsletter_server/adapter/out/persistence"
	"newsletter_server/core/domain"
	"newsletter_server/core/port/out"
	"newsletter_server/core/service/auth"
	"newsletter_server/pkg/apperr"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeConnRepo struct {
	conn       *domain.MailConnection
	beginOK    bool
	lastStatus domain.ConnectionStatus
	lastError  string
	finished   bool
	stale      []*domain.MailConnection
	statusSets int
}

func (f *fakeConnRepo) GetByUser(_ context.Context, _ uuid.UUID) (*domain.MailConnection, error) {
	if f.conn == nil {
		return nil, persistence.ErrNotFound
	}
	return f.conn, nil
}

func (f *fakeConnRepo) Upsert(_ context.Context, conn *domain.MailConnection) (*domain.MailConnection, error) {
	f.conn = conn
	return conn, nil
}

func (f *fakeConnRepo) UpdateStatus(_ context.Context, _ uuid.UUID, status domain.ConnectionStatus, lastError string) error {
	f.lastStatus = status
	f.lastError = lastError
	f.statusSets++
	return nil
}

func (f *fakeConnRepo) BeginSync(_ context.Context, _ uuid.UUID) (bool, error) {
	return f.beginOK, nil
}

func (f *fakeConnRepo) FinishSync(_ context.Context, _ uuid.UUID, _ time.Time) error {
	f.finished = true
	return nil
}

func (f *fakeConnRepo) UpdateTokens(_ context.Context, _ int64, _, _ string, _ *time.Time) error {
	return nil
}

func (f *fakeConnRepo) Disconnect(_ context.Context, _ uuid.UUID) (bool, error) {
	return f.conn != nil, nil
}

func (f *fakeConnRepo) ListStaleSyncing(_ context.Context, _ time.Time) ([]*domain.MailConnection, error) {
	return f.stale, nil
}

type fakeNewsletterRepo struct {
	bySender map[string]*domain.Newsletter
	nextID   int64
}

func newFakeNewsletterRepo() *fakeNewsletterRepo {
	return &fakeNewsletterRepo{bySender: make(map[string]*domain.Newsletter)}
}

func (f *fakeNewsletterRepo) UpsertBySender(_ context.Context, meta *domain.NewsletterMetadata, receivedAt time.Time) (*domain.Newsletter, error) {
	if nl, ok := f.bySender[meta.SenderEmail]; ok {
		nl.EmailCount++
		nl.LastReceivedAt = &receivedAt
		return nl, nil
	}
	f.nextID++
	nl := &domain.Newsletter{
		ID:          f.nextID,
		Name:        meta.Name,
		SenderEmail: meta.SenderEmail,
		Category:    meta.Category,
		EmailCount:  1,
	}
	f.bySender[meta.SenderEmail] = nl
	return nl, nil
}

func (f *fakeNewsletterRepo) GetByID(_ context.Context, id int64) (*domain.Newsletter, error) {
	for _, nl := range f.bySender {
		if nl.ID == id {
			return nl, nil
		}
	}
	return nil, persistence.ErrNotFound
}

func (f *fakeNewsletterRepo) Search(_ context.Context, _ string, _ int) ([]*domain.Newsletter, error) {
	return nil, nil
}

type fakeSubRepo struct {
	active   map[string]bool
	recorded int
}

func newFakeSubRepo() *fakeSubRepo {
	return &fakeSubRepo{active: make(map[string]bool)}
}

func subKey(userID uuid.UUID, newsletterID int64) string {
	return fmt.Sprintf("%s/%d", userID, newsletterID)
}

func (f *fakeSubRepo) Ensure(_ context.Context, userID uuid.UUID, newsletterID int64) (bool, error) {
	key := subKey(userID, newsletterID)
	if f.active[key] {
		return false, nil
	}
	f.active[key] = true
	return true, nil
}

func (f *fakeSubRepo) Unsubscribe(_ context.Context, userID uuid.UUID, newsletterID int64) (bool, error) {
	key := subKey(userID, newsletterID)
	if !f.active[key] {
		return false, nil
	}
	f.active[key] = false
	return true, nil
}

func (f *fakeSubRepo) ListByUser(_ context.Context, _ uuid.UUID, _, _ int) ([]*domain.Subscription, error) {
	return nil, nil
}

func (f *fakeSubRepo) RecordEmail(_ context.Context, _ uuid.UUID, _ int64, _ time.Time) error {
	f.recorded++
	return nil
}

type fakeEmailRepo struct {
	emails map[string]*domain.NewsletterEmail
	failOn string // external id that fails on insert
}

func newFakeEmailRepo() *fakeEmailRepo {
	return &fakeEmailRepo{emails: make(map[string]*domain.NewsletterEmail)}
}

func (f *fakeEmailRepo) Insert(_ context.Context, email *domain.NewsletterEmail) (bool, error) {
	if email.ExternalID == f.failOn {
		return false, errors.New("insert blew up")
	}
	key := email.UserID.String() + "/" + email.ExternalID
	if _, ok := f.emails[key]; ok {
		return false, nil
	}
	f.emails[key] = email
	return true, nil
}

func (f *fakeEmailRepo) ListByUser(_ context.Context, _ uuid.UUID, _ *int64, _, _ int) ([]*domain.NewsletterEmail, error) {
	return nil, nil
}

func (f *fakeEmailRepo) UpdateInteraction(_ context.Context, _ int64, _ uuid.UUID, _ domain.Interaction) (bool, error) {
	return false, nil
}

type fakeMailbox struct {
	messages []*domain.MailMessage
	failures []domain.MessageError
	err      error
}

func (f *fakeMailbox) Address() string { return "user@gmail.com" }

func (f *fakeMailbox) ListMessages(_ context.Context, _ out.ListOptions) ([]*domain.MailMessage, []domain.MessageError, error) {
	return f.messages, f.failures, f.err
}

type fakeFactory struct {
	mailbox *fakeMailbox
	err     error
}

func (f *fakeFactory) Open(_ context.Context, _ *oauth2.Token) (out.Mailbox, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.mailbox, nil
}

type fakeCreds struct {
	err error
}

func (f *fakeCreds) Token(_ context.Context, _ *domain.MailConnection) (*oauth2.Token, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &oauth2.Token{AccessToken: "at"}, nil
}

type fakeProducer struct {
	published []*out.MailboxSyncJob
	err       error
}

func (f *fakeProducer) PublishMailboxSync(_ context.Context, job *out.MailboxSyncJob) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, job)
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

func newsletterMsg(id, sender, subject string) *domain.MailMessage {
	return &domain.MailMessage{
		ExternalID: id,
		Subject:    subject,
		FromEmail:  sender,
		FromName:   "Sender",
		BodyText:   "some content, unsubscribe here",
		ReceivedAt: time.Now(),
		Headers:    map[string]string{"list-unsubscribe": "<mailto:u@x.com>"},
	}
}

func personalMsg(id string) *domain.MailMessage {
	return &domain.MailMessage{
		ExternalID: id,
		Subject:    "Lunch?",
		FromEmail:  "friend@gmail.com",
		BodyText:   "see you at noon",
		ReceivedAt: time.Now(),
	}
}

type fixture struct {
	connRepo  *fakeConnRepo
	nlRepo    *fakeNewsletterRepo
	subRepo   *fakeSubRepo
	emailRepo *fakeEmailRepo
	mailbox   *fakeMailbox
	creds     *fakeCreds
	producer  *fakeProducer
	svc       *SyncService
	userID    uuid.UUID
}

func newFixture(messages []*domain.MailMessage) *fixture {
	f := &fixture{
		connRepo:  &fakeConnRepo{beginOK: true},
		nlRepo:    newFakeNewsletterRepo(),
		subRepo:   newFakeSubRepo(),
		emailRepo: newFakeEmailRepo(),
		mailbox:   &fakeMailbox{messages: messages},
		creds:     &fakeCreds{},
		producer:  &fakeProducer{},
		userID:    uuid.New(),
	}
	f.connRepo.conn = &domain.MailConnection{
		ID:     1,
		UserID: f.userID,
		Status: domain.ConnectionSyncing,
	}
	f.svc = NewSyncService(
		f.connRepo, f.nlRepo, f.subRepo, f.emailRepo, nil,
		&fakeFactory{mailbox: f.mailbox}, f.creds, f.producer,
		30*time.Minute,
	)
	return f
}

// =============================================================================
// Tests
// =============================================================================

func TestRunIngestsNewslettersAndSkipsPersonalMail(t *testing.T) {
	messages := []*domain.MailMessage{
		newsletterMsg("m1", "news@tldr.tech", "TLDR Newsletter"),
		newsletterMsg("m2", "crew@morningbrew.com", "Morning Brew"),
		personalMsg("m3"),
		newsletterMsg("m4", "news@tldr.tech", "TLDR Newsletter"),
		personalMsg("m5"),
		newsletterMsg("m6", "digest@devops.io", "DevOps Digest"),
		personalMsg("m7"),
		newsletterMsg("m8", "crew@morningbrew.com", "Morning Brew"),
		personalMsg("m9"),
		newsletterMsg("m10", "news@tldr.tech", "TLDR Newsletter"),
	}

	f := newFixture(messages)
	run, err := f.svc.Run(context.Background(), f.userID, domain.SyncOptions{})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if run.EmailsProcessed != 10 {
		t.Errorf("EmailsProcessed = %d, want 10", run.EmailsProcessed)
	}
	// Every classified message counts: 6 newsletter messages from 3 senders.
	if run.NewslettersDetected != 6 {
		t.Errorf("NewslettersDetected = %d, want 6", run.NewslettersDetected)
	}
	if run.NewNewsletters != 3 {
		t.Errorf("NewNewsletters = %d, want 3", run.NewNewsletters)
	}
	if run.DuplicatesSkipped != 0 {
		t.Errorf("DuplicatesSkipped = %d, want 0", run.DuplicatesSkipped)
	}
	if len(run.Errors) != 0 {
		t.Errorf("Errors = %v, want none", run.Errors)
	}
	if len(f.emailRepo.emails) != 6 {
		t.Errorf("persisted emails = %d, want 6", len(f.emailRepo.emails))
	}
	if !f.connRepo.finished {
		t.Error("FinishSync was not called")
	}
}

func TestRunIsIdempotentAcrossRepeats(t *testing.T) {
	messages := []*domain.MailMessage{
		newsletterMsg("m1", "news@tldr.tech", "TLDR Newsletter"),
		newsletterMsg("m2", "crew@morningbrew.com", "Morning Brew"),
	}

	f := newFixture(messages)
	if _, err := f.svc.Run(context.Background(), f.userID, domain.SyncOptions{}); err != nil {
		t.Fatalf("first Run() error: %v", err)
	}

	second, err := f.svc.Run(context.Background(), f.userID, domain.SyncOptions{})
	if err != nil {
		t.Fatalf("second Run() error: %v", err)
	}
	if second.NewNewsletters != 0 {
		t.Errorf("second run NewNewsletters = %d, want 0", second.NewNewsletters)
	}
	if second.DuplicatesSkipped != 2 {
		t.Errorf("second run DuplicatesSkipped = %d, want 2", second.DuplicatesSkipped)
	}
	if len(f.emailRepo.emails) != 2 {
		t.Errorf("persisted emails = %d, want 2", len(f.emailRepo.emails))
	}
}

func TestRunIsolatesPerMessageFailures(t *testing.T) {
	messages := []*domain.MailMessage{
		newsletterMsg("m1", "news@tldr.tech", "TLDR Newsletter"),
		newsletterMsg("m2", "crew@morningbrew.com", "Morning Brew"),
		newsletterMsg("m3", "digest@devops.io", "DevOps Digest"),
	}

	f := newFixture(messages)
	f.emailRepo.failOn = "m2"

	run, err := f.svc.Run(context.Background(), f.userID, domain.SyncOptions{})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if run.EmailsProcessed != 3 {
		t.Errorf("EmailsProcessed = %d, want 3", run.EmailsProcessed)
	}
	if len(run.Errors) != 1 {
		t.Fatalf("Errors = %v, want exactly one", run.Errors)
	}
	if run.Errors[0].ExternalID != "m2" || run.Errors[0].Stage != "persist" {
		t.Errorf("unexpected error record: %+v", run.Errors[0])
	}
	if len(f.emailRepo.emails) != 2 {
		t.Errorf("persisted emails = %d, want 2", len(f.emailRepo.emails))
	}
	if !f.connRepo.finished {
		t.Error("a per-message failure must not abort the run")
	}
}

func TestRunMarksConnectionExpiredOnRevokedToken(t *testing.T) {
	f := newFixture(nil)
	f.creds.err = auth.ErrTokenExpired

	_, err := f.svc.Run(context.Background(), f.userID, domain.SyncOptions{})
	if !errors.Is(err, auth.ErrTokenExpired) {
		t.Fatalf("Run() error = %v, want ErrTokenExpired", err)
	}
	if f.connRepo.lastStatus != domain.ConnectionExpired {
		t.Errorf("status = %q, want expired", f.connRepo.lastStatus)
	}
	if f.connRepo.finished {
		t.Error("FinishSync must not run after an auth failure")
	}
}

func TestRunMarksConnectionErrorOnAuthFailure(t *testing.T) {
	f := newFixture(nil)
	f.creds.err = errors.New("network down")

	if _, err := f.svc.Run(context.Background(), f.userID, domain.SyncOptions{}); err == nil {
		t.Fatal("Run() expected error")
	}
	if f.connRepo.lastStatus != domain.ConnectionError {
		t.Errorf("status = %q, want error", f.connRepo.lastStatus)
	}
	if f.connRepo.lastError != "Authentication failed" {
		t.Errorf("lastError = %q", f.connRepo.lastError)
	}
}

func TestRunCarriesProviderFetchFailures(t *testing.T) {
	f := newFixture([]*domain.MailMessage{newsletterMsg("m1", "news@tldr.tech", "TLDR Newsletter")})
	f.mailbox.failures = []domain.MessageError{{ExternalID: "m9", Stage: "fetch", Reason: "boom"}}

	run, err := f.svc.Run(context.Background(), f.userID, domain.SyncOptions{})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(run.Errors) != 1 || run.Errors[0].Stage != "fetch" {
		t.Errorf("Errors = %v, want the fetch failure carried through", run.Errors)
	}
}

func TestStartRejectsWhileAlreadySyncing(t *testing.T) {
	f := newFixture(nil)
	f.connRepo.conn.Status = domain.ConnectionSyncing

	_, err := f.svc.Start(context.Background(), f.userID, domain.SyncOptions{})
	appErr := apperr.AsAppError(err)
	if appErr == nil || appErr.Code != apperr.CodeSyncInProgress {
		t.Fatalf("Start() error = %v, want SYNC_IN_PROGRESS", err)
	}
	if len(f.producer.published) != 0 {
		t.Errorf("published jobs = %d, want 0", len(f.producer.published))
	}
}

func TestStartAllowsRetryFromErrorAndExpired(t *testing.T) {
	for _, status := range []domain.ConnectionStatus{domain.ConnectionError, domain.ConnectionExpired} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(nil)
			f.connRepo.conn.Status = status

			if _, err := f.svc.Start(context.Background(), f.userID, domain.SyncOptions{}); err != nil {
				t.Fatalf("Start() error: %v", err)
			}
			if len(f.producer.published) != 1 {
				t.Errorf("published jobs = %d, want 1", len(f.producer.published))
			}
		})
	}
}

func TestStartRejectsConcurrentSync(t *testing.T) {
	f := newFixture(nil)
	f.connRepo.conn.Status = domain.ConnectionConnected
	f.connRepo.beginOK = false // someone else holds the slot

	_, err := f.svc.Start(context.Background(), f.userID, domain.SyncOptions{})
	appErr := apperr.AsAppError(err)
	if appErr == nil || appErr.Code != apperr.CodeSyncInProgress {
		t.Fatalf("Start() error = %v, want SYNC_IN_PROGRESS", err)
	}
}

func TestStartRequiresConnection(t *testing.T) {
	f := newFixture(nil)
	f.connRepo.conn = nil

	_, err := f.svc.Start(context.Background(), f.userID, domain.SyncOptions{})
	appErr := apperr.AsAppError(err)
	if appErr == nil || appErr.Code != apperr.CodeNotConnected {
		t.Fatalf("Start() error = %v, want NOT_CONNECTED", err)
	}
}

func TestStartRejectsDisconnectedConnection(t *testing.T) {
	f := newFixture(nil)
	f.connRepo.conn.Status = domain.ConnectionDisconnected

	_, err := f.svc.Start(context.Background(), f.userID, domain.SyncOptions{})
	appErr := apperr.AsAppError(err)
	if appErr == nil || appErr.Code != apperr.CodeNotConnected {
		t.Fatalf("Start() error = %v, want NOT_CONNECTED", err)
	}
}

func TestStartPublishesJob(t *testing.T) {
	f := newFixture(nil)
	f.connRepo.conn.Status = domain.ConnectionConnected

	startedAt, err := f.svc.Start(context.Background(), f.userID, domain.SyncOptions{MaxEmails: 50})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if startedAt.IsZero() {
		t.Error("startedAt is zero")
	}
	if len(f.producer.published) != 1 {
		t.Fatalf("published jobs = %d, want 1", len(f.producer.published))
	}
	job := f.producer.published[0]
	if job.UserID != f.userID.String() {
		t.Errorf("job.UserID = %q", job.UserID)
	}
	if job.Options.MaxEmails != 50 || job.Options.DaysBack != domain.DefaultSyncDaysBack {
		t.Errorf("job options not normalized: %+v", job.Options)
	}
}

func TestRecoverStale(t *testing.T) {
	f := newFixture(nil)
	f.connRepo.stale = []*domain.MailConnection{
		{UserID: uuid.New(), Status: domain.ConnectionSyncing},
		{UserID: uuid.New(), Status: domain.ConnectionSyncing},
	}

	recovered, err := f.svc.RecoverStale(context.Background())
	if err != nil {
		t.Fatalf("RecoverStale() error: %v", err)
	}
	if recovered != 2 {
		t.Errorf("recovered = %d, want 2", recovered)
	}
	if f.connRepo.lastStatus != domain.ConnectionError || f.connRepo.lastError != "sync timed out" {
		t.Errorf("stale connections not moved to error: %q %q", f.connRepo.lastStatus, f.connRepo.lastError)
	}
	if f.connRepo.statusSets != 2 {
		t.Errorf("UpdateStatus calls = %d, want 2", f.connRepo.statusSets)
	}
}
