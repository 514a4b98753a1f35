package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:        2,
		QueueSize:      16,
		EnqueueTimeout: 50 * time.Millisecond,
		MaxAttempts:    3,
		RetryBackoff:   time.Millisecond,
		Location:       time.UTC,
	}
}

func confirmedEvent() Event {
	return Event{
		Kind:          KindConfirmed,
		AppointmentID: uuid.New(),
		Recipient:     Recipient{Name: "Asha", Email: "asha@example.com", Phone: "+919876543210"},
		DoctorName:    "Dr. Rao",
		When:          time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC),
	}
}

func TestDispatcher_DeliversEmailAndSMS(t *testing.T) {
	email := &MockEmailSender{}
	sms := &MockSMSSender{}
	d := NewDispatcher(testConfig(), email, sms, nil, zerolog.Nop())
	d.Start(context.Background())

	d.Notify(context.Background(), confirmedEvent())
	require.NoError(t, d.Close(context.Background()))

	calls := email.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "asha@example.com", calls[0].To)
	assert.Contains(t, calls[0].Subject, "Dr. Rao")
	assert.Contains(t, calls[0].Body, "10:00 AM")

	smsCalls := sms.Calls()
	require.Len(t, smsCalls, 1)
	assert.Equal(t, "+919876543210", smsCalls[0].To)

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.Enqueued)
	assert.Equal(t, uint64(2), stats.Sent)
	assert.Equal(t, uint64(0), stats.Failed)
}

func TestDispatcher_SkipsMissingChannel(t *testing.T) {
	email := &MockEmailSender{}
	sms := &MockSMSSender{}
	d := NewDispatcher(testConfig(), email, sms, nil, zerolog.Nop())
	d.Start(context.Background())

	ev := confirmedEvent()
	ev.Recipient.Email = ""
	d.Notify(context.Background(), ev)
	require.NoError(t, d.Close(context.Background()))

	assert.Empty(t, email.Calls())
	assert.Len(t, sms.Calls(), 1)
}

func TestDispatcher_OTPGoesBySMSOnly(t *testing.T) {
	email := &MockEmailSender{}
	sms := &MockSMSSender{}
	d := NewDispatcher(testConfig(), email, sms, nil, zerolog.Nop())
	d.Start(context.Background())

	d.Notify(context.Background(), Event{
		Kind:      KindOTP,
		Recipient: Recipient{Email: "asha@example.com", Phone: "+919876543210"},
		Code:      "123456",
	})
	require.NoError(t, d.Close(context.Background()))

	assert.Empty(t, email.Calls())
	require.Len(t, sms.Calls(), 1)
	assert.Contains(t, sms.Calls()[0].Body, "123456")
}

func TestDispatcher_RetriesUntilSuccess(t *testing.T) {
	email := &MockEmailSender{FailTimes: 2, FailError: "smtp timeout"}
	d := NewDispatcher(testConfig(), email, nil, nil, zerolog.Nop())
	d.Start(context.Background())

	ev := confirmedEvent()
	ev.Recipient.Phone = ""
	d.Notify(context.Background(), ev)
	require.NoError(t, d.Close(context.Background()))

	assert.Len(t, email.Calls(), 3)
	assert.Equal(t, uint64(1), d.Stats().Sent)
	assert.Equal(t, uint64(0), d.Stats().Failed)
}

func TestDispatcher_GivesUpAfterMaxAttempts(t *testing.T) {
	email := &MockEmailSender{ShouldFail: true, FailError: "provider down"}
	d := NewDispatcher(testConfig(), email, nil, nil, zerolog.Nop())
	d.Start(context.Background())

	ev := confirmedEvent()
	ev.Recipient.Phone = ""
	d.Notify(context.Background(), ev)
	require.NoError(t, d.Close(context.Background()))

	assert.Len(t, email.Calls(), 3)
	assert.Equal(t, uint64(1), d.Stats().Failed)
}

// blockingSender holds every send until release is closed.
type blockingSender struct {
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func (b *blockingSender) SendEmail(ctx context.Context, _, _, _ string) error {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	sender := &blockingSender{release: make(chan struct{}), started: make(chan struct{})}
	cfg := testConfig()
	cfg.Workers = 1
	cfg.QueueSize = 1
	cfg.EnqueueTimeout = 10 * time.Millisecond
	d := NewDispatcher(cfg, sender, nil, nil, zerolog.Nop())
	d.Start(context.Background())

	ev := confirmedEvent()
	ev.Recipient.Phone = ""

	d.Notify(context.Background(), ev)
	<-sender.started
	d.Notify(context.Background(), ev) // fills the queue

	start := time.Now()
	err := d.Enqueue(context.Background(), ev)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Less(t, elapsed, time.Second, "enqueue must give up after its timeout")

	d.Notify(context.Background(), ev)
	assert.Equal(t, uint64(1), d.Stats().Dropped)

	close(sender.release)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, uint64(2), d.Stats().Sent)
}

func TestDispatcher_NotifyAfterCloseIsDropped(t *testing.T) {
	d := NewDispatcher(testConfig(), &MockEmailSender{}, nil, nil, zerolog.Nop())
	d.Start(context.Background())
	require.NoError(t, d.Close(context.Background()))

	err := d.Enqueue(context.Background(), confirmedEvent())
	assert.ErrorIs(t, err, ErrDispatcherClosed)

	d.Notify(context.Background(), confirmedEvent())
	assert.Equal(t, uint64(1), d.Stats().Dropped)
	assert.NoError(t, d.Close(context.Background()), "second close is a no-op")
}

func TestDispatcher_CloseTimesOut(t *testing.T) {
	sender := &blockingSender{release: make(chan struct{}), started: make(chan struct{})}
	d := NewDispatcher(testConfig(), sender, nil, nil, zerolog.Nop())
	d.Start(context.Background())

	ev := confirmedEvent()
	ev.Recipient.Phone = ""
	d.Notify(context.Background(), ev)
	<-sender.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatcher_ConcurrentNotify(t *testing.T) {
	email := &MockEmailSender{}
	cfg := testConfig()
	cfg.QueueSize = 100
	d := NewDispatcher(cfg, email, nil, nil, zerolog.Nop())
	d.Start(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev := confirmedEvent()
			ev.Recipient.Phone = ""
			d.Notify(context.Background(), ev)
		}()
	}
	wg.Wait()
	require.NoError(t, d.Close(context.Background()))

	assert.Len(t, email.Calls(), 50)
	assert.Equal(t, uint64(50), d.Stats().Enqueued)
}
