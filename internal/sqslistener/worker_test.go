package sqslistener

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yscope/log-ingestor/internal/model"
)

type receiveReply struct {
	out *sqs.ReceiveMessageOutput
	err error
}

// fakeQueue replays scripted receive batches and records deletions. Once
// the script is exhausted it blocks until the context is cancelled, like a
// long poll on an empty queue.
type fakeQueue struct {
	mu      sync.Mutex
	replies []receiveReply
	deleted []string
}

func (f *fakeQueue) ReceiveMessage(ctx context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	if len(f.replies) > 0 {
		reply := f.replies[0]
		f.replies = f.replies[1:]
		f.mu.Unlock()
		return reply.out, reply.err
	}
	f.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeQueue) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, *in.ReceiptHandle)
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeQueue) deletedHandles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func message(body, receipt string) types.Message {
	m := types.Message{Body: aws.String(body)}
	if receipt != "" {
		m.ReceiptHandle = aws.String(receipt)
	}
	return m
}

func batch(msgs ...types.Message) receiveReply {
	return receiveReply{out: &sqs.ReceiveMessageOutput{Messages: msgs}}
}

func testParams() JobParams {
	return JobParams{
		Region:    "us-east-2",
		Bucket:    "B",
		KeyPrefix: "prefix/",
		QueueURL:  "https://sqs.us-east-2.amazonaws.com/1/q",
	}
}

func runWorker(t *testing.T, q QueueAPI, ch chan model.ObjectRef) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	w := New(q, testParams(), ch)
	go func() { _ = w.Run(ctx) }()
	return cancel
}

const matchingEvent = `{
  "Records": [
    {"eventName": "ObjectCreated:Put", "s3": {"bucket": {"name": "B"}, "object": {"key": "prefix/x", "size": 7}}},
    {"eventName": "ObjectCreated:Put", "s3": {"bucket": {"name": "B"}, "object": {"key": "other/y", "size": 3}}}
  ]
}`

func TestWorkerFiltersAndDeletes(t *testing.T) {
	q := &fakeQueue{replies: []receiveReply{
		batch(message(matchingEvent, "receipt-1")),
	}}
	ch := make(chan model.ObjectRef, 10)
	cancel := runWorker(t, q, ch)
	defer cancel()

	select {
	case got := <-ch:
		assert.Equal(t, model.ObjectRef{Bucket: "B", Key: "prefix/x", Size: 7}, got)
	case <-time.After(time.Second):
		t.Fatal("no object emitted")
	}

	require.Eventually(t, func() bool { return len(q.deletedHandles()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"receipt-1"}, q.deletedHandles())

	// only the matching record was emitted
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra object: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWorkerSkipsNonCreatedEvents(t *testing.T) {
	body := `{"Records": [{"eventName": "ObjectRemoved:Delete", "s3": {"bucket": {"name": "B"}, "object": {"key": "prefix/x", "size": 7}}}]}`
	q := &fakeQueue{replies: []receiveReply{batch(message(body, "receipt-1"))}}
	ch := make(chan model.ObjectRef, 10)
	cancel := runWorker(t, q, ch)
	defer cancel()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, ch)
	assert.Empty(t, q.deletedHandles())
}

func TestWorkerSkipsOtherBuckets(t *testing.T) {
	body := `{"Records": [{"eventName": "ObjectCreated:Put", "s3": {"bucket": {"name": "other"}, "object": {"key": "prefix/x", "size": 7}}}]}`
	q := &fakeQueue{replies: []receiveReply{batch(message(body, "receipt-1"))}}
	ch := make(chan model.ObjectRef, 10)
	cancel := runWorker(t, q, ch)
	defer cancel()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, ch)
	assert.Empty(t, q.deletedHandles())
}

func TestWorkerSkipsDirectoryLikeKeys(t *testing.T) {
	body := `{"Records": [{"eventName": "ObjectCreated:Put", "s3": {"bucket": {"name": "B"}, "object": {"key": "prefix/dir/", "size": 0}}}]}`
	q := &fakeQueue{replies: []receiveReply{batch(message(body, "receipt-1"))}}
	ch := make(chan model.ObjectRef, 10)
	cancel := runWorker(t, q, ch)
	defer cancel()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, ch)
	assert.Empty(t, q.deletedHandles())
}

func TestWorkerUnparseableBodyNotDeleted(t *testing.T) {
	q := &fakeQueue{replies: []receiveReply{
		batch(
			message("not json at all", "receipt-bad"),
			message(matchingEvent, "receipt-good"),
		),
	}}
	ch := make(chan model.ObjectRef, 10)
	cancel := runWorker(t, q, ch)
	defer cancel()

	require.Eventually(t, func() bool { return len(q.deletedHandles()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"receipt-good"}, q.deletedHandles())
}

func TestWorkerEmptyBodySkipped(t *testing.T) {
	q := &fakeQueue{replies: []receiveReply{
		batch(types.Message{ReceiptHandle: aws.String("receipt-1")}),
	}}
	ch := make(chan model.ObjectRef, 10)
	cancel := runWorker(t, q, ch)
	defer cancel()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, ch)
	assert.Empty(t, q.deletedHandles())
}

func TestWorkerNoReceiptHandleNoDelete(t *testing.T) {
	q := &fakeQueue{replies: []receiveReply{
		batch(message(matchingEvent, "")),
	}}
	ch := make(chan model.ObjectRef, 10)
	cancel := runWorker(t, q, ch)
	defer cancel()

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no object emitted")
	}
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, q.deletedHandles())
}

func TestWorkerContinuesAfterReceiveError(t *testing.T) {
	q := &fakeQueue{replies: []receiveReply{
		{err: errors.New("sqs is down")},
		batch(message(matchingEvent, "receipt-1")),
	}}
	ch := make(chan model.ObjectRef, 10)
	cancel := runWorker(t, q, ch)
	defer cancel()

	select {
	case got := <-ch:
		assert.Equal(t, "prefix/x", got.Key)
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not recover from receive error")
	}
}

func TestWorkerCancelStopsLongPoll(t *testing.T) {
	q := &fakeQueue{}
	ch := make(chan model.ObjectRef)
	ctx, cancel := context.WithCancel(context.Background())
	w := New(q, testParams(), ch)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after cancellation")
	}
}
