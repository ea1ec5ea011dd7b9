package consumerWorker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"studioBooker/internal/mailer"
	"studioBooker/internal/rabbit"
)

type Consumer interface {
	Consume(handler func([]byte) error) error
	StopConsuming() error
}

// Reader delivers queued notification emails through a mail sender.
type Reader struct {
	rmq     Consumer
	sender  mailer.Sender
	timeout time.Duration
	log     *zerolog.Logger
	observe func(err error)
	done    chan struct{}
	cancel  context.CancelFunc
}

func NewReader(rmq Consumer, sender mailer.Sender, timeout time.Duration, log *zerolog.Logger) *Reader {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Reader{
		rmq:     rmq,
		sender:  sender,
		timeout: timeout,
		log:     log,
		done:    make(chan struct{}),
	}
}

// OnResult registers a callback invoked with each delivery's result.
func (r *Reader) OnResult(fn func(err error)) {
	r.observe = fn
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	if err := r.rmq.Consume(func(body []byte) error { return r.handle(cctx, body) }); err != nil {
		r.log.Error().Err(err).Msg("failed to start consuming")
		close(r.done)
		return
	}
	r.log.Info().Msg("notification reader started")

	go func() {
		defer close(r.done)
		<-cctx.Done()
		r.log.Info().Msg("notification reader stopped")
	}()
}

func (r *Reader) handle(ctx context.Context, body []byte) error {
	if ctx.Err() != nil {
		return fmt.Errorf("reader stopped: %w", rabbit.ErrRequeue)
	}

	var msg mailer.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		r.log.Error().Err(err).Msg("failed to unmarshal mail message")
		return fmt.Errorf("decode mail message: %w", err)
	}
	if msg.To == "" {
		return fmt.Errorf("mail message without recipient")
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := r.sender.Send(sendCtx, msg)
	if err != nil && ctx.Err() != nil {
		r.log.Warn().Err(err).Str("to", msg.To).Msg("delivery interrupted by shutdown, requeueing")
		return fmt.Errorf("%w: %v", rabbit.ErrRequeue, err)
	}
	if r.observe != nil {
		r.observe(err)
	}
	if err != nil {
		r.log.Warn().Err(err).Str("to", msg.To).Msg("failed to deliver queued notification")
		return err
	}
	r.log.Info().Str("to", msg.To).Msg("queued notification delivered")
	return nil
}

// Stop stops taking new deliveries, lets the ones in flight finish, then
// ends the reader. Messages arriving after that stay on the queue.
func (r *Reader) Stop() {
	if r.cancel == nil {
		return
	}
	if err := r.rmq.StopConsuming(); err != nil {
		r.log.Warn().Err(err).Msg("failed to stop consuming")
	}
	r.cancel()
	<-r.done
}
