// Package worker consumes analysis jobs from the queue and drives records
// through their state machine.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"supercv-backend/internal/aiengine"
	"supercv-backend/internal/analyses"
	"supercv-backend/internal/extract"
	"supercv-backend/internal/queue"
	"supercv-backend/internal/shared/metrics"
	"supercv-backend/internal/shared/storage/object"
	"supercv-backend/internal/shared/telemetry"
	"supercv-backend/resume/model"
)

const defaultMaxAttempts = 3

// Failure reasons recorded on records.
const (
	ReasonInputUnavailable = "input_unavailable"
	ReasonRejected         = "rejected_by_engine"
	ReasonEngineFailed     = "ai_engine_unavailable"
)

// ErrUnrecoverable marks jobs that will never succeed; the message should be
// removed from the queue instead of redelivered.
var ErrUnrecoverable = errors.New("unrecoverable job")

// Records is the record-store surface the worker drives.
type Records interface {
	Get(ctx context.Context, id string) (analyses.Record, error)
	MarkProcessing(ctx context.Context, id string) (analyses.Record, error)
	MarkCompleted(ctx context.Context, id string, payload analyses.ResultPayload) (analyses.Record, error)
	MarkFailed(ctx context.Context, id, reason string) (analyses.Record, error)
	MarkCustomizationProcessing(ctx context.Context, id string) (analyses.Record, error)
	AttachDraft(ctx context.Context, id string, draft model.Document) (analyses.Record, error)
	MarkCustomizationFailed(ctx context.Context, id, reason string) (analyses.Record, error)
}

// Job is one delivery of a queue message. Attempt starts at 1.
type Job struct {
	Message queue.Message
	Attempt int
}

// Processor runs analyze and customize jobs.
type Processor struct {
	Records     Records
	Store       object.ObjectStore
	Engine      aiengine.Client
	MaxAttempts int
}

// NewProcessor constructs a Processor.
func NewProcessor(records Records, store object.ObjectStore, engine aiengine.Client) *Processor {
	return &Processor{Records: records, Store: store, Engine: engine, MaxAttempts: defaultMaxAttempts}
}

// Process handles one job. A nil error means the message can be deleted. An
// error wrapping ErrUnrecoverable also means delete; any other error leaves the
// message for redelivery.
func (p *Processor) Process(ctx context.Context, job Job) error {
	ctx = analyses.WithRequestID(ctx, job.Message.RequestID)
	var err error
	switch job.Message.Kind {
	case queue.KindCustomize:
		err = p.customize(ctx, job)
	default:
		err = p.analyze(ctx, job)
	}
	kind := string(job.Message.Kind)
	switch {
	case err == nil:
		metrics.IncJob(kind, "ok")
	case errors.Is(err, ErrUnrecoverable):
		metrics.IncJob(kind, "dropped")
	default:
		metrics.IncJob(kind, "retry")
	}
	return err
}

func (p *Processor) analyze(ctx context.Context, job Job) error {
	id := job.Message.RecordID
	rec, err := p.Records.Get(ctx, id)
	if err != nil {
		return classify(err)
	}
	switch {
	case rec.Status.Terminal():
		telemetry.Info("worker.analysis.already_terminal", map[string]any{"analysis_id": id, "status": string(rec.Status)})
		return nil
	case rec.Status == analyses.StatusPending:
		if rec, err = p.Records.MarkProcessing(ctx, id); err != nil {
			return classify(err)
		}
	}

	file, err := extract.Load(ctx, p.Store, rec.InputRef)
	if err != nil {
		telemetry.Error("worker.analysis.input_failed", map[string]any{"analysis_id": id, "error": err})
		return p.fail(ctx, id, ReasonInputUnavailable)
	}
	payload, err := p.Engine.Analyze(ctx, aiengine.AnalyzeInput{
		FileName: file.Name,
		Content:  file.Content,
		CVText:   p.text(ctx, id, file),
		JobText:  rec.JobContext.Text,
		JobURL:   rec.JobContext.URL,
	})
	if err != nil {
		if errors.Is(err, aiengine.ErrRejected) {
			return p.fail(ctx, id, ReasonRejected)
		}
		if p.retryable(job) {
			return fmt.Errorf("analyze %s: %w", id, err)
		}
		telemetry.Error("worker.analysis.engine_failed", map[string]any{"analysis_id": id, "attempt": job.Attempt, "error": err})
		return p.fail(ctx, id, ReasonEngineFailed)
	}

	if _, err := p.Records.MarkCompleted(ctx, id, payload); err != nil {
		return classify(err)
	}
	return nil
}

func (p *Processor) customize(ctx context.Context, job Job) error {
	id := job.Message.RecordID
	rec, err := p.Records.Get(ctx, id)
	if err != nil {
		return classify(err)
	}
	c := rec.Customization
	if c == nil {
		return fmt.Errorf("%w: %s has no customization request", ErrUnrecoverable, id)
	}
	switch c.State {
	case analyses.StatusCompleted, analyses.StatusFailed:
		return nil
	case analyses.StatusPending:
		if _, err := p.Records.MarkCustomizationProcessing(ctx, id); err != nil {
			return classify(err)
		}
	}

	file, err := extract.Load(ctx, p.Store, rec.InputRef)
	if err != nil {
		telemetry.Error("worker.customize.input_failed", map[string]any{"analysis_id": id, "error": err})
		return p.failCustomization(ctx, id, ReasonInputUnavailable)
	}
	in := aiengine.CustomizeInput{
		FileName: file.Name,
		Content:  file.Content,
		CVText:   p.text(ctx, id, file),
		Mode:     c.Mode,
		JobText:  rec.JobContext.Text,
	}
	if in.JobText == "" {
		in.JobText = rec.JobContext.URL
	}
	if c.Mode == analyses.ModeAnalysis && rec.Result != nil {
		in.AnalysisContext = analysisContext(*rec.Result)
	}

	draft, err := p.Engine.Customize(ctx, in)
	if err != nil {
		if errors.Is(err, aiengine.ErrRejected) {
			return p.failCustomization(ctx, id, ReasonRejected)
		}
		if p.retryable(job) {
			return fmt.Errorf("customize %s: %w", id, err)
		}
		return p.failCustomization(ctx, id, ReasonEngineFailed)
	}
	if _, err := p.Records.AttachDraft(ctx, id, draft); err != nil {
		return classify(err)
	}
	return nil
}

func (p *Processor) text(ctx context.Context, id string, file extract.File) string {
	text, err := extract.Text(ctx, file)
	if err != nil && !errors.Is(err, extract.ErrUnsupported) {
		telemetry.Warn("worker.extract_failed", map[string]any{"analysis_id": id, "mime": file.MimeType, "error": err})
	}
	return text
}

func (p *Processor) retryable(job Job) bool {
	limit := p.MaxAttempts
	if limit <= 0 {
		limit = defaultMaxAttempts
	}
	return job.Attempt < limit
}

func (p *Processor) fail(ctx context.Context, id, reason string) error {
	if _, err := p.Records.MarkFailed(ctx, id, reason); err != nil {
		return classify(err)
	}
	return nil
}

func (p *Processor) failCustomization(ctx context.Context, id, reason string) error {
	if _, err := p.Records.MarkCustomizationFailed(ctx, id, reason); err != nil {
		return classify(err)
	}
	return nil
}

// classify turns record-store errors that redelivery cannot fix into
// ErrUnrecoverable.
func classify(err error) error {
	if errors.Is(err, analyses.ErrInvalidTransition) || errors.Is(err, analyses.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrUnrecoverable, err)
	}
	return err
}

func analysisContext(result analyses.ResultPayload) string {
	summary := struct {
		Scores map[string]int      `json:"scores,omitempty"`
		Detail map[string]string   `json:"detail,omitempty"`
		Lists  map[string][]string `json:"lists,omitempty"`
	}{result.Scores, result.Detail, result.Lists}
	raw, err := json.Marshal(summary)
	if err != nil {
		return ""
	}
	return string(raw)
}
