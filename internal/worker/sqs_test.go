package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"supercv-backend/internal/queue"
)

type fakeSQS struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeProcessor struct {
	err  error
	jobs []Job
}

func (f *fakeProcessor) Process(ctx context.Context, job Job) error {
	f.jobs = append(f.jobs, job)
	return f.err
}

func sqsMessage(t *testing.T, receipt string, msg queue.Message, receiveCount string) sqstypes.Message {
	t.Helper()
	body, err := queue.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out := sqstypes.Message{
		MessageId:     aws.String("m-" + receipt),
		ReceiptHandle: aws.String(receipt),
		Body:          aws.String(string(body)),
	}
	if receiveCount != "" {
		out.Attributes = map[string]string{"ApproximateReceiveCount": receiveCount}
	}
	return out
}

func TestRunnerDeletesMessageOnSuccess(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakeProcessor{}
	r := newSQSRunner(client, "queue", proc, 1, 60)

	r.handleMessage(context.Background(), sqsMessage(t, "r1", queue.Message{RecordID: "analysis-1", RequestID: "req-1"}, "2"))

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
	if len(proc.jobs) != 1 || proc.jobs[0].Attempt != 2 {
		t.Fatalf("expected one job on attempt 2, got %+v", proc.jobs)
	}
	if proc.jobs[0].Message.Kind != queue.KindAnalyze {
		t.Fatalf("expected analyze kind, got %q", proc.jobs[0].Message.Kind)
	}
}

func TestRunnerKeepsMessageOnTransientFailure(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakeProcessor{err: errors.New("boom")}
	r := newSQSRunner(client, "queue", proc, 1, 60)

	r.handleMessage(context.Background(), sqsMessage(t, "r2", queue.Message{RecordID: "analysis-2"}, ""))

	if len(client.deleted) != 0 {
		t.Fatalf("expected no delete, got %d", len(client.deleted))
	}
	if proc.jobs[0].Attempt != 1 {
		t.Fatalf("expected attempt to default to 1, got %d", proc.jobs[0].Attempt)
	}
}

func TestRunnerDeletesUnrecoverable(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakeProcessor{err: fmt.Errorf("%w: gone", ErrUnrecoverable)}
	r := newSQSRunner(client, "queue", proc, 1, 60)

	r.handleMessage(context.Background(), sqsMessage(t, "r3", queue.Message{RecordID: "analysis-3"}, "1"))

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}

func TestRunnerDeletesOnInvalidJSON(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakeProcessor{}
	r := newSQSRunner(client, "queue", proc, 1, 60)

	r.handleMessage(context.Background(), sqstypes.Message{
		MessageId:     aws.String("m4"),
		ReceiptHandle: aws.String("r4"),
		Body:          aws.String("{not-json"),
	})

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
	if len(proc.jobs) != 0 {
		t.Fatalf("expected processor not to run")
	}
}

func TestRunnerSkipsDeleteWithoutReceipt(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakeProcessor{}
	r := newSQSRunner(client, "queue", proc, 1, 60)

	msg := sqsMessage(t, "", queue.Message{RecordID: "analysis-5"}, "1")
	msg.ReceiptHandle = nil
	r.handleMessage(context.Background(), msg)

	if len(client.deleted) != 0 {
		t.Fatalf("expected no delete, got %d", len(client.deleted))
	}
}

func TestRunnerStopsOnCancel(t *testing.T) {
	client := &fakeSQS{}
	r := newSQSRunner(client, "queue", &fakeProcessor{}, 2, 60)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
