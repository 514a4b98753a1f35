package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var ErrDispatcherClosed = errors.New("notification dispatcher closed")

type DispatcherConfig struct {
	Workers        int
	QueueSize      int
	EnqueueTimeout time.Duration
	MaxAttempts    int
	RetryBackoff   time.Duration
	// Location renders dates and times in messages.
	Location *time.Location
}

// Stats counts events and per-channel deliveries since start.
type Stats struct {
	Enqueued uint64 `json:"enqueued"`
	Dropped  uint64 `json:"dropped"`
	Sent     uint64 `json:"sent"`
	Failed   uint64 `json:"failed"`
	Pending  int    `json:"pending"`
}

// Dispatcher queues events and sends them from a pool of workers. Notify
// never blocks longer than EnqueueTimeout; a full queue drops the event.
type Dispatcher struct {
	cfg       DispatcherConfig
	email     EmailSender
	sms       SMSSender
	templates *TemplateEngine
	logger    zerolog.Logger

	queue  chan Event
	mu     sync.RWMutex
	closed bool
	group  *errgroup.Group
	cancel context.CancelFunc

	enqueued atomic.Uint64
	dropped  atomic.Uint64
	sent     atomic.Uint64
	failed   atomic.Uint64
}

func NewDispatcher(cfg DispatcherConfig, email EmailSender, sms SMSSender, tpl *TemplateEngine, logger zerolog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if tpl == nil {
		tpl = NewTemplateEngine()
	}
	return &Dispatcher{
		cfg:       cfg,
		email:     email,
		sms:       sms,
		templates: tpl,
		logger:    logger.With().Str("component", "notification").Logger(),
		queue:     make(chan Event, cfg.QueueSize),
	}
}

// Start launches the workers. They run until Close.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	d.cancel = cancel
	d.group = g

	for i := 0; i < d.cfg.Workers; i++ {
		g.Go(func() error {
			for ev := range d.queue {
				d.deliver(gctx, ev)
			}
			return nil
		})
	}
}

// Notify enqueues ev. It is fire-and-forget: a full queue or a closed
// dispatcher drops the event and logs it.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) {
	if err := d.Enqueue(ctx, ev); err != nil {
		d.dropped.Add(1)
		d.logger.Warn().Err(err).
			Str("kind", string(ev.Kind)).
			Str("appointment_id", ev.AppointmentID.String()).
			Msg("notification dropped")
	}
}

// Enqueue is Notify that reports why an event was not queued.
func (d *Dispatcher) Enqueue(ctx context.Context, ev Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- ev:
		d.enqueued.Add(1)
		return nil
	default:
	}

	timer := time.NewTimer(d.cfg.EnqueueTimeout)
	defer timer.Stop()
	select {
	case d.queue <- ev:
		d.enqueued.Add(1)
		return nil
	case <-timer.C:
		return fmt.Errorf("queue full after %s", d.cfg.EnqueueTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits for queued ones to be sent. If ctx
// expires first, in-flight sends are cancelled and ctx.Err is returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	if d.group == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		_ = d.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Enqueued: d.enqueued.Load(),
		Dropped:  d.dropped.Load(),
		Sent:     d.sent.Load(),
		Failed:   d.failed.Load(),
		Pending:  len(d.queue),
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	msg, err := d.templates.Render(ev.Kind, templateData(ev, d.cfg.Location))
	if err != nil {
		d.failed.Add(1)
		d.logger.Error().Err(err).Str("kind", string(ev.Kind)).Msg("render notification")
		return
	}

	log := d.logger.With().
		Str("kind", string(ev.Kind)).
		Str("appointment_id", ev.AppointmentID.String()).
		Logger()

	if ev.Recipient.Email != "" && msg.Subject != "" && d.email != nil {
		d.record(log, "email", d.retry(ctx, func(ctx context.Context) error {
			return d.email.SendEmail(ctx, ev.Recipient.Email, msg.Subject, msg.Body)
		}))
	}
	if ev.Recipient.Phone != "" && msg.SMS != "" && d.sms != nil {
		d.record(log, "sms", d.retry(ctx, func(ctx context.Context) error {
			return d.sms.SendSMS(ctx, ev.Recipient.Phone, msg.SMS)
		}))
	}
}

func (d *Dispatcher) record(log zerolog.Logger, channel string, err error) {
	if err != nil {
		d.failed.Add(1)
		log.Error().Err(err).Str("channel", channel).Msg("notification failed")
		return
	}
	d.sent.Add(1)
	log.Debug().Str("channel", channel).Msg("notification sent")
}

// retry calls send up to MaxAttempts times with linear backoff.
func (d *Dispatcher) retry(ctx context.Context, send func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if err = send(ctx); err == nil {
			return nil
		}
		if attempt == d.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * d.cfg.RetryBackoff):
		}
	}
	return fmt.Errorf("after %d attempts: %w", d.cfg.MaxAttempts, err)
}
