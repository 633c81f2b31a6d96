package analyses

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"supercv-backend/internal/credits"
	"supercv-backend/internal/queue"
	"supercv-backend/internal/shared/metrics"
	"supercv-backend/internal/shared/telemetry"
	"supercv-backend/resume/model"
)

// claimTokenBytes is the entropy of an anonymous claim token.
const claimTokenBytes = 32

// ErrQueueUnavailable is returned when a customization job cannot be enqueued.
var ErrQueueUnavailable = errors.New("job queue unavailable")

// Ledger is the slice of the credit ledger a submission needs.
type Ledger interface {
	Debit(ctx context.Context, accountID, reference string) (credits.Account, error)
	Refund(ctx context.Context, accountID, reference string) (credits.Account, error)
}

// TxRunner runs fn inside one database transaction carried by ctx.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service owns the analysis record lifecycle.
type Service struct {
	Repo   Repo
	Ledger Ledger
	Queue  queue.Client
	// Tx makes the debit and the insert one transaction. Without it the
	// debit is refunded when the insert fails.
	Tx TxRunner

	now      func() time.Time
	newID    func() string
	newToken func() (string, error)
}

// NewService constructs a Service.
func NewService(repo Repo, ledger Ledger, q queue.Client) *Service {
	return &Service{
		Repo:     repo,
		Ledger:   ledger,
		Queue:    q,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		newToken: newClaimToken,
	}
}

// SubmitInput describes a new submission. A nil OwnerID makes the record
// anonymous and claimable.
type SubmitInput struct {
	InputRef   string
	JobContext JobContext
	OwnerID    *string
}

// Submit debits the owner, creates a PENDING record and enqueues the analysis.
// When the debit fails no record is created.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (Record, error) {
	if strings.TrimSpace(in.InputRef) == "" {
		return Record{}, fmt.Errorf("%w: input reference is required", ErrInvalidInput)
	}
	now := s.now()
	rec := Record{
		ID:       s.newID(),
		Status:   StatusPending,
		InputRef: in.InputRef,
		JobContext: JobContext{
			Text: strings.TrimSpace(in.JobContext.Text),
			URL:  strings.TrimSpace(in.JobContext.URL),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.OwnerID != nil && *in.OwnerID != "" {
		owner := *in.OwnerID
		rec.OwnerID = &owner
	} else {
		token, err := s.newToken()
		if err != nil {
			return Record{}, fmt.Errorf("generate claim token: %w", err)
		}
		rec.ClaimToken = token
	}

	if err := s.create(ctx, rec); err != nil {
		return Record{}, err
	}
	metrics.IncAnalysisSubmitted()
	telemetry.Info("analysis.submitted", map[string]any{
		"request_id":   requestIDFromContext(ctx),
		"analysis_id":  rec.ID,
		"is_anonymous": rec.Anonymous(),
	})

	if s.Queue == nil {
		return rec, nil
	}
	if err := s.Queue.Send(ctx, s.message(ctx, rec.ID, queue.KindAnalyze, "")); err != nil {
		telemetry.Error("analysis.enqueue_failed", map[string]any{
			"request_id":  requestIDFromContext(ctx),
			"analysis_id": rec.ID,
			"error":       err,
		})
		failed, markErr := s.MarkFailed(ctx, rec.ID, ReasonQueueUnavailable)
		if markErr != nil {
			return Record{}, markErr
		}
		if rec.OwnerID != nil {
			if _, refundErr := s.Ledger.Refund(ctx, *rec.OwnerID, rec.ID); refundErr != nil {
				telemetry.Error("analysis.refund_failed", map[string]any{"analysis_id": rec.ID, "error": refundErr})
			}
		}
		return failed, nil
	}
	return rec, nil
}

func (s *Service) create(ctx context.Context, rec Record) error {
	if rec.OwnerID == nil {
		return s.Repo.Create(ctx, rec)
	}
	owner := *rec.OwnerID
	if s.Tx != nil {
		return s.Tx.RunInTx(ctx, func(ctx context.Context) error {
			if _, err := s.Ledger.Debit(ctx, owner, rec.ID); err != nil {
				return err
			}
			return s.Repo.Create(ctx, rec)
		})
	}
	if _, err := s.Ledger.Debit(ctx, owner, rec.ID); err != nil {
		return err
	}
	if err := s.Repo.Create(ctx, rec); err != nil {
		if _, refundErr := s.Ledger.Refund(ctx, owner, rec.ID); refundErr != nil {
			telemetry.Error("analysis.refund_failed", map[string]any{"analysis_id": rec.ID, "error": refundErr})
		}
		return err
	}
	return nil
}

// Get returns a record by ID.
func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	if strings.TrimSpace(id) == "" {
		return Record{}, ErrNotFound
	}
	return s.Repo.Get(ctx, id)
}

// List returns an owner's records ordered newest-first.
func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) ([]Record, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.Repo.ListByOwner(ctx, ownerID, limit, offset)
}

// MarkProcessing records that a worker picked the job up.
func (s *Service) MarkProcessing(ctx context.Context, id string) (Record, error) {
	return s.transition(ctx, id, StatusProcessing, func(rec *Record, now time.Time) {
		rec.StartedAt = &now
	})
}

// MarkCompleted attaches the result and finishes the record.
func (s *Service) MarkCompleted(ctx context.Context, id string, payload ResultPayload) (Record, error) {
	rec, err := s.transition(ctx, id, StatusCompleted, func(rec *Record, now time.Time) {
		rec.Result = &payload
		rec.FailureReason = ""
		rec.CompletedAt = &now
	})
	if err == nil {
		metrics.IncAnalysisCompleted()
		observeDuration(rec)
	}
	return rec, err
}

// MarkFailed finishes the record with a failure reason.
func (s *Service) MarkFailed(ctx context.Context, id, reason string) (Record, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown_error"
	}
	rec, err := s.transition(ctx, id, StatusFailed, func(rec *Record, now time.Time) {
		rec.Result = nil
		rec.FailureReason = reason
		rec.CompletedAt = &now
	})
	if err == nil {
		metrics.IncAnalysisFailed()
		observeDuration(rec)
	}
	return rec, err
}

func (s *Service) transition(ctx context.Context, id string, to Status, apply func(rec *Record, now time.Time)) (Record, error) {
	var from Status
	rec, err := s.Repo.Update(ctx, id, func(rec *Record) error {
		from = rec.Status
		if err := checkTransition(rec.Status, to); err != nil {
			return err
		}
		now := s.now()
		rec.Status = to
		rec.UpdatedAt = now
		apply(rec, now)
		return nil
	})
	fields := map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"analysis_id":       id,
		"status":            string(to),
		"status_transition": transitionLabel(from, to),
	}
	if err != nil {
		fields["error"] = err
		telemetry.Error("analysis.transition_failed", fields)
		return Record{}, err
	}
	telemetry.Info("analysis.status", fields)
	return rec, nil
}

// Ack confirms a customization request was accepted.
type Ack struct {
	RecordID    string    `json:"analysisId"`
	Mode        Mode      `json:"mode"`
	State       Status    `json:"state"`
	RequestedAt time.Time `json:"requestedAt"`
}

// Customize requests another AI pass over a completed record. It records the
// sub-job and enqueues it; the record's status is left alone. A new request is
// refused while the previous sub-job is still pending or processing.
func (s *Service) Customize(ctx context.Context, id string, mode Mode) (Ack, error) {
	rec, err := s.Repo.Update(ctx, id, func(rec *Record) error {
		if rec.Status != StatusCompleted {
			return fmt.Errorf("%w: status is %s", ErrInvalidState, rec.Status)
		}
		if c := rec.Customization; c != nil && !c.State.Terminal() {
			return fmt.Errorf("%w: customization is %s", ErrInvalidState, c.State)
		}
		if mode == ModeJobDesc && rec.JobContext.Empty() {
			return fmt.Errorf("%w: no job description was submitted", ErrInvalidState)
		}
		now := s.now()
		rec.Customization = &Customization{Mode: mode, State: StatusPending, RequestedAt: now}
		rec.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Ack{}, err
	}
	metrics.IncCustomizationRequested()
	telemetry.Info("analysis.customization_requested", map[string]any{
		"request_id":  requestIDFromContext(ctx),
		"analysis_id": id,
		"mode":        string(mode),
	})

	if s.Queue != nil {
		if err := s.Queue.Send(ctx, s.message(ctx, id, queue.KindCustomize, string(mode))); err != nil {
			telemetry.Error("analysis.enqueue_failed", map[string]any{"analysis_id": id, "error": err})
			if _, markErr := s.MarkCustomizationFailed(ctx, id, ReasonQueueUnavailable); markErr != nil {
				return Ack{}, markErr
			}
			return Ack{}, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
		}
	}
	c := rec.Customization
	return Ack{RecordID: id, Mode: c.Mode, State: c.State, RequestedAt: c.RequestedAt}, nil
}

// MarkCustomizationProcessing records that a worker picked up the sub-job.
func (s *Service) MarkCustomizationProcessing(ctx context.Context, id string) (Record, error) {
	return s.customizationTransition(ctx, id, StatusProcessing, func(rec *Record) {})
}

// AttachDraft completes the sub-job and stores the proposed document.
func (s *Service) AttachDraft(ctx context.Context, id string, draft model.Document) (Record, error) {
	return s.customizationTransition(ctx, id, StatusCompleted, func(rec *Record) {
		var payload ResultPayload
		if rec.Result != nil {
			payload = *rec.Result
		}
		payload.AIDraft = &draft
		rec.Result = &payload
		rec.Customization.FailureReason = ""
	})
}

// MarkCustomizationFailed finishes the sub-job with a failure reason.
func (s *Service) MarkCustomizationFailed(ctx context.Context, id, reason string) (Record, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "unknown_error"
	}
	return s.customizationTransition(ctx, id, StatusFailed, func(rec *Record) {
		rec.Customization.FailureReason = reason
	})
}

func (s *Service) customizationTransition(ctx context.Context, id string, to Status, apply func(rec *Record)) (Record, error) {
	rec, err := s.Repo.Update(ctx, id, func(rec *Record) error {
		if rec.Customization == nil {
			return fmt.Errorf("%w: no customization requested", ErrInvalidTransition)
		}
		if err := checkTransition(rec.Customization.State, to); err != nil {
			return err
		}
		rec.Customization.State = to
		rec.UpdatedAt = s.now()
		apply(rec)
		return nil
	})
	if err != nil {
		telemetry.Error("analysis.customization_transition_failed", map[string]any{
			"analysis_id": id,
			"state":       string(to),
			"error":       err,
		})
		return Record{}, err
	}
	telemetry.Info("analysis.customization_status", map[string]any{
		"request_id":  requestIDFromContext(ctx),
		"analysis_id": id,
		"state":       string(to),
	})
	return rec, nil
}

func (s *Service) message(ctx context.Context, id string, kind queue.Kind, mode string) queue.Message {
	return queue.Message{
		RecordID:   id,
		Kind:       kind,
		Mode:       mode,
		RequestID:  requestIDFromContext(ctx),
		EnqueuedAt: s.now().Format(time.RFC3339),
		Version:    queue.MessageVersion,
	}
}

func observeDuration(rec Record) {
	if rec.CompletedAt == nil {
		return
	}
	start := rec.CreatedAt
	if rec.StartedAt != nil {
		start = *rec.StartedAt
	}
	metrics.ObserveAnalysisDuration(rec.CompletedAt.Sub(start))
}

func newClaimToken() (string, error) {
	buf := make([]byte, claimTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
