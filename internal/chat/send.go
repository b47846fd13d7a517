package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"

	"github.com/availex/twitch-gateway-go/internal/logger"
	"github.com/availex/twitch-gateway-go/internal/model"
)

// sender owns the outbound side of the chat channel: a bounded queue
// drained by a single consumer that spaces writes at least minInterval
// apart. The semaphore bounds how many sends are pending end to end,
// so a stalled socket exerts backpressure on producers instead of
// growing memory.
type sender struct {
	queue       chan model.OutboundMessage
	inFlight    *semaphore.Weighted
	write       func(ctx context.Context, line string) error
	clock       clockwork.Clock
	minInterval time.Duration
	log         *logger.Logger
}

func newSender(write func(ctx context.Context, line string) error, clock clockwork.Clock, log *logger.Logger, queueSize, maxInFlight int, minInterval time.Duration) *sender {
	return &sender{
		queue:       make(chan model.OutboundMessage, queueSize),
		inFlight:    semaphore.NewWeighted(int64(maxInFlight)),
		write:       write,
		clock:       clock,
		minInterval: minInterval,
		log:         log,
	}
}

// enqueue admits one message. It blocks while the in-flight budget is
// exhausted or the queue is full, and fails only on context
// cancellation.
func (s *sender) enqueue(ctx context.Context, msg model.OutboundMessage) error {
	if err := s.inFlight.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for send slot: %w", err)
	}
	select {
	case s.queue <- msg:
		return nil
	case <-ctx.Done():
		s.inFlight.Release(1)
		return ctx.Err()
	}
}

// run drains the queue until the context is canceled. Messages are
// written one at a time; after each write the consumer sleeps
// minInterval so the spacing between any two lines never drops below
// it. Write failures are logged and the message dropped; the
// connection teardown path handles recovery.
func (s *sender) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.queue:
			line := formatPrivmsg(msg)
			if err := s.write(ctx, line); err != nil {
				s.log.Warn("Dropping outbound message", "room", msg.Room, "error", err)
			}
			s.inFlight.Release(1)

			select {
			case <-ctx.Done():
				return
			case <-s.clock.After(s.minInterval):
			}
		}
	}
}

// formatPrivmsg renders one outbound message as an IRC line, with the
// reply-parent tag when the message is a threaded reply.
func formatPrivmsg(msg model.OutboundMessage) string {
	if msg.ReplyTo != "" {
		return fmt.Sprintf("@reply-parent-msg-id=%s PRIVMSG #%s :%s", msg.ReplyTo, msg.Room, msg.Text)
	}
	return fmt.Sprintf("PRIVMSG #%s :%s", msg.Room, msg.Text)
}
