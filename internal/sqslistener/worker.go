package sqslistener

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"

	"github.com/yscope/log-ingestor/internal/model"
)

// QueueAPI is the slice of the SQS API the listener needs. *sqs.Client
// satisfies it.
type QueueAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

const (
	receiveBatchMax = 10
	longPollSeconds = 10

	// receiveErrorBackoff keeps a broken queue from being hammered in a
	// tight loop; re-delivery is otherwise governed by the queue's
	// visibility timeout.
	receiveErrorBackoff = time.Second
)

// Worker consumes object-created notifications from a queue, emits
// matching ObjectRefs to a buffering listener and acknowledges processed
// messages. A message is deleted only when it produced at least one
// ObjectRef; everything else is left to the visibility timeout.
type Worker struct {
	client QueueAPI
	params JobParams
	sender chan<- model.ObjectRef
}

// New creates a queue listener worker feeding sender.
func New(client QueueAPI, params JobParams, sender chan<- model.ObjectRef) *Worker {
	return &Worker{client: client, params: params, sender: sender}
}

// Run long-polls the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := w.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(w.params.QueueURL),
			MaxNumberOfMessages: receiveBatchMax,
			WaitTimeSeconds:     longPollSeconds,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Str("queue_url", w.params.QueueURL).Msg("Failed to receive messages")
			select {
			case <-time.After(receiveErrorBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		if len(resp.Messages) == 0 {
			log.Info().Str("queue_url", w.params.QueueURL).Msg("No messages received")
			continue
		}
		for _, msg := range resp.Messages {
			if err := w.handleMessage(ctx, msg); err != nil {
				return err
			}
		}
	}
}

// handleMessage parses one message, emits matching records and deletes the
// message when something was emitted. Returns an error only on
// cancellation.
func (w *Worker) handleMessage(ctx context.Context, msg types.Message) error {
	if msg.Body == nil || *msg.Body == "" {
		log.Warn().Msg("Received message with empty body, skipping")
		return nil
	}

	var event S3Event
	if err := json.Unmarshal([]byte(*msg.Body), &event); err != nil {
		log.Error().Err(err).Msg("Failed to parse message body as an S3 event, skipping")
		return nil
	}

	objectFound := false
	for _, record := range event.Records {
		if !strings.HasPrefix(record.EventName, "ObjectCreated:") {
			continue
		}
		bucket := record.S3.Bucket.Name
		if bucket != w.params.Bucket {
			continue
		}
		key := record.S3.Object.Key
		if strings.HasSuffix(key, "/") || !strings.HasPrefix(key, w.params.KeyPrefix) {
			continue
		}

		obj := model.ObjectRef{Bucket: bucket, Key: key, Size: record.S3.Object.Size}
		log.Info().Str("bucket", bucket).Str("key", key).Uint64("size", obj.Size).Msg("Found object in queue event")
		select {
		case w.sender <- obj:
		case <-ctx.Done():
			return ctx.Err()
		}
		objectFound = true
	}

	if !objectFound {
		log.Info().Msg("No relevant objects found in message")
		return nil
	}
	if msg.ReceiptHandle == nil {
		return nil
	}
	if _, err := w.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(w.params.QueueURL),
		ReceiptHandle: msg.ReceiptHandle,
	}); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error().Err(err).Msg("Failed to delete message")
	}
	return nil
}
