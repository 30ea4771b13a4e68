package buffering

import (
	"github.com/rs/zerolog/log"

	"github.com/yscope/log-ingestor/internal/compression"
	"github.com/yscope/log-ingestor/internal/model"
)

// Buffer accumulates discovered objects until their total size reaches the
// threshold, then turns them into one compression job config. It is owned
// and mutated by a single listener goroutine; no locking.
type Buffer struct {
	tag           string
	objects       []model.ObjectRef
	key           ListenerKey
	totalSize     uint64
	sizeThreshold uint64
}

// NewBuffer creates an empty buffer for the given key.
func NewBuffer(key ListenerKey, sizeThreshold uint64) *Buffer {
	return &Buffer{
		tag:           key.Tag(),
		key:           key,
		sizeThreshold: sizeThreshold,
	}
}

// Tag returns the buffer's logging identifier.
func (b *Buffer) Tag() string { return b.tag }

// Add appends obj and returns a job config when the accumulated size has
// reached the threshold, nil otherwise. A single Add triggers at most one
// flush.
func (b *Buffer) Add(obj model.ObjectRef) *compression.JobConfig {
	b.totalSize += obj.Size
	b.objects = append(b.objects, obj)
	if b.totalSize < b.sizeThreshold {
		return nil
	}
	return b.Flush()
}

// Flush drains the buffer into a job config preserving arrival order.
// Returns nil when the buffer is empty; flushing an empty buffer is a
// no-op.
func (b *Buffer) Flush() *compression.JobConfig {
	if len(b.objects) == 0 {
		log.Info().Str("buffer", b.tag).Msg("Buffer is empty, nothing to flush")
		return nil
	}
	log.Info().
		Str("buffer", b.tag).
		Int("objects", len(b.objects)).
		Uint64("total_size", b.totalSize).
		Msg("Flushing buffer")

	keys := make([]string, len(b.objects))
	for i, obj := range b.objects {
		keys[i] = obj.Key
	}
	cfg := compression.NewJobConfig(
		model.Credentials{
			AccessKeyID:     b.key.AccessKeyID,
			SecretAccessKey: b.key.SecretAccessKey,
		},
		b.key.Bucket,
		b.key.Dataset,
		"", // the explicit key list supersedes prefix scanning
		b.key.Region,
		keys,
	)

	b.objects = nil
	b.totalSize = 0
	return &cfg
}
