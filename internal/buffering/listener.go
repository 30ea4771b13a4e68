package buffering

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yscope/log-ingestor/internal/compression"
	"github.com/yscope/log-ingestor/internal/model"
)

// Submitter delivers a flushed job config to the compression engine's job
// table and returns the assigned row id.
type Submitter interface {
	Submit(ctx context.Context, cfg compression.JobConfig) (uint64, error)
}

// Listener owns a Buffer and drains an inbox of discovered objects on a
// dedicated goroutine. It flushes when the buffer reaches its size
// threshold or when no object has arrived for the idle timeout. The inbox
// is bounded; a full inbox blocks producers, which is the flow-control
// mechanism.
type Listener struct {
	inbox   chan model.ObjectRef
	timeout time.Duration
	done    chan struct{}
}

// Spawn starts the listener goroutine. The listener runs until its inbox
// is closed, performing one final flush on exit.
func Spawn(buf *Buffer, submitter Submitter, timeout time.Duration, inboxSize int) *Listener {
	l := &Listener{
		inbox:   make(chan model.ObjectRef, inboxSize),
		timeout: timeout,
		done:    make(chan struct{}),
	}
	go l.run(buf, submitter)
	return l
}

// NewSender returns a send endpoint for a new producer. Many producers may
// share one listener.
func (l *Listener) NewSender() chan<- model.ObjectRef {
	return l.inbox
}

// Close closes the inbox. The listener flushes whatever is buffered and
// exits. Only the owner of all producers may call this; in the running
// service listeners live until process exit.
func (l *Listener) Close() {
	close(l.inbox)
}

// Done is closed once the listener goroutine has exited.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

func (l *Listener) run(buf *Buffer, submitter Submitter) {
	defer close(l.done)

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	for {
		select {
		case obj, ok := <-l.inbox:
			if !ok {
				log.Info().Str("buffer", buf.Tag()).Msg("Inbox closed, flushing remaining objects")
				submit(buf.Tag(), buf.Flush(), submitter)
				return
			}
			submit(buf.Tag(), buf.Add(obj), submitter)
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(l.timeout)

		case <-timer.C:
			log.Info().Str("buffer", buf.Tag()).Msg("Idle timeout reached, flushing buffer")
			submit(buf.Tag(), buf.Flush(), submitter)
			timer.Reset(l.timeout)
		}
	}
}

// submit hands a flushed config to the submitter. Submission errors are
// logged and swallowed: once discovery is restartable, losing a
// pre-insertion batch is acceptable, and after the row exists the engine
// owns retry policy.
func submit(tag string, cfg *compression.JobConfig, submitter Submitter) {
	if cfg == nil {
		return
	}
	id, err := submitter.Submit(context.Background(), *cfg)
	if err != nil {
		log.Error().Err(err).Str("buffer", tag).Msg("Failed to submit compression job")
		return
	}
	log.Info().Str("buffer", tag).Uint64("job_id", id).Msg("Submitted compression job")
}
