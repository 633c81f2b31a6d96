package worker

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"supercv-backend/internal/shared/telemetry"
)

// JobProcessor runs a single decoded job.
type JobProcessor interface {
	Process(ctx context.Context, job Job) error
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSRunner long-polls an SQS queue and fans messages out to a bounded pool.
type SQSRunner struct {
	client            sqsAPI
	queueURL          string
	processor         JobProcessor
	concurrency       int
	visibilitySeconds int
	ShutdownTimeout   time.Duration
}

// NewSQSRunner constructs a runner for queueURL.
func NewSQSRunner(client *sqs.Client, queueURL string, processor JobProcessor, concurrency, visibilitySeconds int) *SQSRunner {
	return newSQSRunner(client, queueURL, processor, concurrency, visibilitySeconds)
}

func newSQSRunner(client sqsAPI, queueURL string, processor JobProcessor, concurrency, visibilitySeconds int) *SQSRunner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &SQSRunner{
		client:            client,
		queueURL:          queueURL,
		processor:         processor,
		concurrency:       concurrency,
		visibilitySeconds: visibilitySeconds,
		ShutdownTimeout:   30 * time.Second,
	}
}

// Run polls until ctx is cancelled, then waits up to ShutdownTimeout for
// in-flight jobs.
func (r *SQSRunner) Run(ctx context.Context) error {
	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup

	telemetry.Info("worker.started", map[string]any{"queue": r.queueURL, "concurrency": r.concurrency, "visibility_s": r.visibilitySeconds})

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := r.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(r.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(r.visibilitySeconds),
			MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
				sqstypes.MessageSystemAttributeNameApproximateReceiveCount,
			},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			telemetry.Warn("worker.receive_failed", map[string]any{"error": err})
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				r.handleMessage(ctx, m)
			}(msg)
		}
	}

	telemetry.Info("worker.draining", map[string]any{"timeout": r.ShutdownTimeout.String()})
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(r.ShutdownTimeout):
		telemetry.Warn("worker.shutdown_timeout", nil)
	}
	return nil
}

func (r *SQSRunner) handleMessage(ctx context.Context, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)
	decoded, meta, err := ParseMessage(body)
	if err != nil {
		fields := baseFields(msg, "", "")
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		var missing ErrMissingRecordID
		if errors.As(err, &missing) && missing.RequestID != "" {
			fields["request_id"] = missing.RequestID
		}
		fields["error"] = err.Error()
		telemetry.Error("worker.decode_failed", fields)
		r.deleteMessage(ctx, msg, "", "")
		return
	}

	fields := baseFields(msg, decoded.RecordID, decoded.RequestID)
	fields["kind"] = string(decoded.Kind)
	telemetry.Info("worker.received", fields)

	job := Job{Message: decoded, Attempt: max(1, receiveCount(msg))}
	if err := r.processor.Process(ctx, job); err != nil {
		fields["error"] = err.Error()
		if errors.Is(err, ErrUnrecoverable) {
			telemetry.Error("worker.dropped", fields)
			r.deleteMessage(ctx, msg, decoded.RecordID, decoded.RequestID)
			return
		}
		telemetry.Warn("worker.redeliver", fields)
		return
	}
	if r.deleteMessage(ctx, msg, decoded.RecordID, decoded.RequestID) {
		telemetry.Info("worker.done", fields)
	}
}

func (r *SQSRunner) deleteMessage(ctx context.Context, msg sqstypes.Message, recordID, requestID string) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg, recordID, requestID)
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.delete_failed", fields)
		return false
	}
	if _, err := r.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(r.queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg, recordID, requestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, recordID, requestID string) map[string]any {
	fields := map[string]any{
		"analysis_id":    recordID,
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	raw := msg.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}
