package analyses

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supercv-backend/internal/credits"
	"supercv-backend/internal/queue"
	"supercv-backend/resume/model"
)

type failingQueue struct{ err error }

func (f failingQueue) Send(ctx context.Context, msg queue.Message) error { return f.err }

type serviceFixture struct {
	svc    *Service
	repo   *MemoryRepo
	ledger *credits.Ledger
	queue  *queue.MemoryQueue
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	clock := credits.NewFixedClock(time.Date(2026, time.May, 4, 12, 0, 0, 0, time.UTC))
	ledger := credits.NewMemoryLedger(clock, time.UTC)
	repo := NewMemoryRepo()
	q := queue.NewMemoryQueue(16)
	svc := NewService(repo, ledger, q)
	return serviceFixture{svc: svc, repo: repo, ledger: ledger, queue: q}
}

func (f serviceFixture) account(t *testing.T, email string) credits.Account {
	t.Helper()
	acct, _, err := f.ledger.EnsureAccount(context.Background(), credits.IdentityAttributes{Email: email})
	require.NoError(t, err)
	return acct
}

func (f serviceFixture) completed(t *testing.T, in SubmitInput) Record {
	t.Helper()
	ctx := context.Background()
	rec, err := f.svc.Submit(ctx, in)
	require.NoError(t, err)
	_, err = f.svc.MarkProcessing(ctx, rec.ID)
	require.NoError(t, err)
	done, err := f.svc.MarkCompleted(ctx, rec.ID, ResultPayload{Scores: map[string]int{"overall": 72}})
	require.NoError(t, err)
	return done
}

func TestSubmitAnonymousIssuesClaimToken(t *testing.T) {
	f := newServiceFixture(t)

	rec, err := f.svc.Submit(context.Background(), SubmitInput{InputRef: "anonymous/cv.pdf"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
	assert.True(t, rec.Anonymous())
	assert.Len(t, rec.ClaimToken, 43)

	msg, err := f.queue.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rec.ID, msg.RecordID)
	assert.Equal(t, queue.KindAnalyze, msg.Kind)
}

func TestSubmitTokensAreUnique(t *testing.T) {
	f := newServiceFixture(t)
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		rec, err := f.svc.Submit(context.Background(), SubmitInput{InputRef: "anonymous/cv.pdf"})
		require.NoError(t, err)
		assert.False(t, seen[rec.ClaimToken])
		seen[rec.ClaimToken] = true
	}
}

func TestSubmitOwnedDebitsOneCredit(t *testing.T) {
	f := newServiceFixture(t)
	acct := f.account(t, "ada@example.com")

	rec, err := f.svc.Submit(context.Background(), SubmitInput{InputRef: "k", OwnerID: &acct.ID})
	require.NoError(t, err)
	assert.Empty(t, rec.ClaimToken)
	assert.True(t, rec.OwnedBy(acct.ID))

	after, err := f.ledger.Get(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.CreditBalance)
}

func TestSubmitWithoutCreditCreatesNothing(t *testing.T) {
	f := newServiceFixture(t)
	acct := f.account(t, "ada@example.com")
	_, err := f.svc.Submit(context.Background(), SubmitInput{InputRef: "k", OwnerID: &acct.ID})
	require.NoError(t, err)
	<-drain(f.queue)

	_, err = f.svc.Submit(context.Background(), SubmitInput{InputRef: "k2", OwnerID: &acct.ID})
	assert.ErrorIs(t, err, credits.ErrInsufficientCredit)

	recs, err := f.svc.List(context.Background(), acct.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, 0, f.queue.Len())
}

func TestSubmitRequiresInputRef(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Submit(context.Background(), SubmitInput{InputRef: "  "})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSubmitQueueFailureMarksFailedAndRefunds(t *testing.T) {
	f := newServiceFixture(t)
	f.svc.Queue = failingQueue{err: errors.New("sqs down")}
	acct := f.account(t, "ada@example.com")

	rec, err := f.svc.Submit(context.Background(), SubmitInput{InputRef: "k", OwnerID: &acct.ID})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, ReasonQueueUnavailable, rec.FailureReason)

	after, err := f.ledger.Get(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.CreditBalance)
}

type recordingTx struct {
	calls int
}

func (r *recordingTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.calls++
	return fn(ctx)
}

func TestSubmitUsesTransactionWhenConfigured(t *testing.T) {
	f := newServiceFixture(t)
	tx := &recordingTx{}
	f.svc.Tx = tx
	acct := f.account(t, "ada@example.com")

	_, err := f.svc.Submit(context.Background(), SubmitInput{InputRef: "k", OwnerID: &acct.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, tx.calls)
}

func TestLifecycleHappyPath(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	rec, err := f.svc.Submit(ctx, SubmitInput{InputRef: "k"})
	require.NoError(t, err)

	processing, err := f.svc.MarkProcessing(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, processing.Status)
	require.NotNil(t, processing.StartedAt)

	done, err := f.svc.MarkCompleted(ctx, rec.ID, ResultPayload{Scores: map[string]int{"overall": 80}})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.Result)
	assert.Equal(t, 80, done.Result.Scores["overall"])
	assert.Empty(t, done.FailureReason)
}

func TestTerminalStatusNeverReverts(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	rec, err := f.svc.Submit(ctx, SubmitInput{InputRef: "k"})
	require.NoError(t, err)
	_, err = f.svc.MarkFailed(ctx, rec.ID, "extract_failed")
	require.NoError(t, err)

	_, err = f.svc.MarkProcessing(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.MarkCompleted(ctx, rec.ID, ResultPayload{})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := f.svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Nil(t, got.Result)
	assert.Equal(t, "extract_failed", got.FailureReason)
}

func TestMarkFailedDefaultsReason(t *testing.T) {
	f := newServiceFixture(t)
	rec, err := f.svc.Submit(context.Background(), SubmitInput{InputRef: "k"})
	require.NoError(t, err)
	failed, err := f.svc.MarkFailed(context.Background(), rec.ID, " ")
	require.NoError(t, err)
	assert.Equal(t, "unknown_error", failed.FailureReason)
}

func TestConcurrentTerminalTransitionsHaveOneWinner(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	rec, err := f.svc.Submit(ctx, SubmitInput{InputRef: "k"})
	require.NoError(t, err)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = f.svc.MarkCompleted(ctx, rec.ID, ResultPayload{})
			} else {
				_, err = f.svc.MarkFailed(ctx, rec.ID, "boom")
			}
			if err == nil {
				atomic.AddInt32(&wins, 1)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestGetUnknownRecord(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.MarkProcessing(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCustomizeRequiresCompletedRecord(t *testing.T) {
	f := newServiceFixture(t)
	rec, err := f.svc.Submit(context.Background(), SubmitInput{InputRef: "k"})
	require.NoError(t, err)

	_, err = f.svc.Customize(context.Background(), rec.ID, ModeAnalysis)
	assert.ErrorIs(t, err, ErrInvalidState)

	got, err := f.svc.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Customization)
}

func TestCustomizeJobDescNeedsJobContext(t *testing.T) {
	f := newServiceFixture(t)
	rec := f.completed(t, SubmitInput{InputRef: "k"})

	_, err := f.svc.Customize(context.Background(), rec.ID, ModeJobDesc)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCustomizeEnqueuesSubJob(t *testing.T) {
	f := newServiceFixture(t)
	rec := f.completed(t, SubmitInput{InputRef: "k", JobContext: JobContext{Text: "Go engineer"}})
	<-drain(f.queue)

	ack, err := f.svc.Customize(context.Background(), rec.ID, ModeJobDesc)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, ack.RecordID)
	assert.Equal(t, ModeJobDesc, ack.Mode)
	assert.Equal(t, StatusPending, ack.State)

	msg, err := f.queue.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, queue.KindCustomize, msg.Kind)
	assert.Equal(t, string(ModeJobDesc), msg.Mode)

	got, err := f.svc.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestCustomizationLifecycleKeepsTopLevelStatus(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	rec := f.completed(t, SubmitInput{InputRef: "k"})
	_, err := f.svc.Customize(ctx, rec.ID, ModeAnalysis)
	require.NoError(t, err)

	_, err = f.svc.MarkCustomizationProcessing(ctx, rec.ID)
	require.NoError(t, err)
	draft := model.Document{FullName: "Ada Lovelace", HardSkills: []string{"Go"}}
	got, err := f.svc.AttachDraft(ctx, rec.ID, draft)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, StatusCompleted, got.Customization.State)
	require.NotNil(t, got.Result.AIDraft)
	assert.Equal(t, "Ada Lovelace", got.Result.AIDraft.FullName)
	assert.Equal(t, 72, got.Result.Scores["overall"])

	_, err = f.svc.MarkCustomizationFailed(ctx, rec.ID, "late")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCustomizeRefusedWhileSubJobInFlight(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	rec := f.completed(t, SubmitInput{InputRef: "k", JobContext: JobContext{Text: "Go engineer"}})

	_, err := f.svc.Customize(ctx, rec.ID, ModeAnalysis)
	require.NoError(t, err)
	_, err = f.svc.Customize(ctx, rec.ID, ModeJobDesc)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.MarkCustomizationProcessing(ctx, rec.ID)
	require.NoError(t, err)
	_, err = f.svc.Customize(ctx, rec.ID, ModeJobDesc)
	assert.ErrorIs(t, err, ErrInvalidState)

	got, err := f.svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, ModeAnalysis, got.Customization.Mode)
	assert.Equal(t, StatusProcessing, got.Customization.State)

	_, err = f.svc.AttachDraft(ctx, rec.ID, model.Document{FullName: "Ada"})
	require.NoError(t, err)
	ack, err := f.svc.Customize(ctx, rec.ID, ModeJobDesc)
	require.NoError(t, err)
	assert.Equal(t, ModeJobDesc, ack.Mode)
	assert.Equal(t, StatusPending, ack.State)
}

func TestCustomizeQueueFailure(t *testing.T) {
	f := newServiceFixture(t)
	rec := f.completed(t, SubmitInput{InputRef: "k"})
	f.svc.Queue = failingQueue{err: errors.New("sqs down")}

	_, err := f.svc.Customize(context.Background(), rec.ID, ModeAnalysis)
	assert.ErrorIs(t, err, ErrQueueUnavailable)

	got, err := f.svc.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Customization)
	assert.Equal(t, StatusFailed, got.Customization.State)
	assert.Equal(t, ReasonQueueUnavailable, got.Customization.FailureReason)
}

func TestCustomizationTransitionWithoutRequest(t *testing.T) {
	f := newServiceFixture(t)
	rec := f.completed(t, SubmitInput{InputRef: "k"})
	_, err := f.svc.MarkCustomizationProcessing(context.Background(), rec.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestListNewestFirst(t *testing.T) {
	f := newServiceFixture(t)
	acct := f.account(t, "ada@example.com")
	_, _, err := f.ledger.Grant(context.Background(), acct.ID, 5, "pay-1")
	require.NoError(t, err)

	base := time.Date(2026, time.May, 4, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		f.svc.now = func() time.Time { return at }
		rec, err := f.svc.Submit(context.Background(), SubmitInput{InputRef: "k", OwnerID: &acct.ID})
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	recs, err := f.svc.List(context.Background(), acct.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, ids[2], recs[0].ID)
	assert.Equal(t, ids[1], recs[1].ID)
}

func drain(q *queue.MemoryQueue) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		for q.Len() > 0 {
			_, _ = q.Receive(context.Background())
		}
		close(done)
	}()
	return done
}
