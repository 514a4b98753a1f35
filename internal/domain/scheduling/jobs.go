package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/medicall/booking/internal/platform/notification"
)

const (
	reminderLead   = 24 * time.Hour
	reminderWindow = time.Hour
	jobTimeout     = 5 * time.Minute
)

// Jobs are the periodic tasks: a day-ahead reminder and the transition of
// finished appointments to completed.
type Jobs struct {
	ledger   Ledger
	dir      Directory
	notifier Notifier
	cfg      Config
	now      func() time.Time
	log      zerolog.Logger
}

func NewJobs(ledger Ledger, dir Directory, notifier Notifier, cfg Config, logger zerolog.Logger) *Jobs {
	return &Jobs{
		ledger:   ledger,
		dir:      dir,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		log:      logger.With().Str("component", "jobs").Logger(),
	}
}

// SendReminders notifies patients of scheduled appointments starting in
// [now+24h, now+25h). Run hourly, each appointment is reminded once.
func (j *Jobs) SendReminders(ctx context.Context) (int, error) {
	from := j.now().Add(reminderLead)
	due, err := j.ledger.List(ctx, Query{Status: StatusScheduled, From: from, To: from.Add(reminderWindow)})
	if err != nil {
		return 0, fmt.Errorf("reminders: list due appointments: %w", err)
	}

	sent := 0
	for _, a := range due {
		patient, err := j.dir.GetUser(ctx, a.PatientID)
		if err != nil {
			j.log.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("reminder skipped: patient lookup failed")
			continue
		}
		doctor, err := j.dir.GetDoctor(ctx, a.DoctorID)
		if err != nil {
			j.log.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("reminder skipped: doctor lookup failed")
			continue
		}
		j.notifier.Notify(ctx, appointmentEvent(notification.KindReminder, a, patient, doctor, j.cfg.SMSCountryCode))
		sent++
	}
	j.log.Info().Int("due", len(due)).Int("queued", sent).Msg("reminders run")
	return sent, nil
}

// CompleteFinished marks scheduled appointments that have ended as completed.
func (j *Jobs) CompleteFinished(ctx context.Context) (int64, error) {
	n, err := j.ledger.CompleteEndedBefore(ctx, j.now())
	if err != nil {
		return 0, fmt.Errorf("completion: %w", err)
	}
	if n > 0 {
		j.log.Info().Int64("completed", n).Msg("appointments completed")
	}
	return n, nil
}

// Run executes a job by name: "reminders" or "completion".
func (j *Jobs) Run(ctx context.Context, name string) error {
	switch name {
	case "reminders":
		_, err := j.SendReminders(ctx)
		return err
	case "completion":
		_, err := j.CompleteFinished(ctx)
		return err
	default:
		return fmt.Errorf("unknown job %q (want reminders or completion)", name)
	}
}

// Schedule registers both jobs on c. Each run gets its own timeout and
// failures are logged.
func (j *Jobs) Schedule(c *cron.Cron, reminderSpec, completionSpec string) error {
	for name, spec := range map[string]string{"reminders": reminderSpec, "completion": completionSpec} {
		name := name
		if _, err := c.AddFunc(spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			if err := j.Run(ctx, name); err != nil {
				j.log.Error().Err(err).Str("job", name).Msg("job failed")
			}
		}); err != nil {
			return fmt.Errorf("schedule %s job %q: %w", name, spec, err)
		}
	}
	return nil
}
