package scanner

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/yscope/log-ingestor/internal/model"
)

// ObjectLister is the slice of the S3 API the scanner needs. *s3.Client
// satisfies it.
type ObjectLister interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

const rescanInterval = 30 * time.Second

// Worker enumerates objects under (bucket, key_prefix) and streams them to
// a buffering listener. The listing cursor only moves forward: once the
// prefix is exhausted the worker sleeps and then lists keys strictly after
// the last one seen, so already-emitted objects are never re-emitted.
type Worker struct {
	client   ObjectLister
	params   JobParams
	sender   chan<- model.ObjectRef
	interval time.Duration
}

// New creates a scanner worker feeding sender.
func New(client ObjectLister, params JobParams, sender chan<- model.ObjectRef) *Worker {
	return &Worker{
		client:   client,
		params:   params,
		sender:   sender,
		interval: rescanInterval,
	}
}

// Run loops until ctx is cancelled. Listing errors are logged and retried
// after the rescan interval without advancing the cursor.
func (w *Worker) Run(ctx context.Context) error {
	var startAfter *string
	for {
		page, last, truncated, err := w.listPage(ctx, startAfter)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).
				Str("bucket", w.params.Bucket).
				Str("key_prefix", w.params.KeyPrefix).
				Msg("Failed to list bucket")
			if err := w.sleep(ctx); err != nil {
				return err
			}
			continue
		}

		if len(page) == 0 {
			log.Info().Str("key_prefix", w.params.KeyPrefix).Msg("No new objects found")
		} else {
			log.Info().Int("count", len(page)).Str("key_prefix", w.params.KeyPrefix).Msg("Found objects")
		}

		for _, obj := range page {
			startAfter = aws.String(obj.Key)
			select {
			case w.sender <- obj:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if last != nil {
			// Advance past filtered entries too, or a page of only
			// directory markers would be listed forever.
			startAfter = last
		}

		if truncated {
			// More keys are waiting; list again immediately.
			continue
		}
		if err := w.sleep(ctx); err != nil {
			return err
		}
	}
}

// listPage fetches one listing page after the cursor. Entries without a
// key or size and directory-like keys are dropped. The second return is
// the last listed key that had a size, whether emitted or dropped as
// directory-like or negative-sized, so the caller can keep the cursor
// moving. Entries without a size do not move it.
func (w *Worker) listPage(ctx context.Context, startAfter *string) ([]model.ObjectRef, *string, bool, error) {
	resp, err := w.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:     aws.String(w.params.Bucket),
		Prefix:     aws.String(w.params.KeyPrefix),
		StartAfter: startAfter,
	})
	if err != nil {
		return nil, nil, false, err
	}

	var page []model.ObjectRef
	var last *string
	for _, entry := range resp.Contents {
		if entry.Key == nil || entry.Size == nil {
			continue
		}
		key := *entry.Key
		last = entry.Key
		if strings.HasSuffix(key, "/") {
			continue
		}
		if *entry.Size < 0 {
			log.Error().Str("key", key).Int64("size", *entry.Size).Msg("Object has negative size, skipping")
			continue
		}
		page = append(page, model.ObjectRef{
			Bucket: w.params.Bucket,
			Key:    key,
			Size:   uint64(*entry.Size),
		})
	}
	return page, last, resp.IsTruncated != nil && *resp.IsTruncated, nil
}

func (w *Worker) sleep(ctx context.Context) error {
	select {
	case <-time.After(w.interval):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
