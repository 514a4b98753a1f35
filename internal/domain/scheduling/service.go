package scheduling

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medicall/booking/internal/domain/availability"
	"github.com/medicall/booking/internal/domain/directory"
	"github.com/medicall/booking/internal/platform/auth"
	"github.com/medicall/booking/internal/platform/notification"
)

// Notifier queues an event without waiting for delivery.
type Notifier interface {
	Notify(ctx context.Context, ev notification.Event)
}

type Config struct {
	// Location is the service location in which weekdays and opening hours
	// are read.
	Location       *time.Location
	SMSCountryCode string
}

// Service moves appointments through scheduled, cancelled and completed.
// Reserve and Move for one doctor are serialised in process; the ledger
// serialises them across processes.
type Service struct {
	ledger    Ledger
	dir       Directory
	templates TemplateSource
	notifier  Notifier
	cfg       Config
	locks     *keyedMutex
	log       zerolog.Logger
}

func NewService(ledger Ledger, dir Directory, templates TemplateSource, notifier Notifier, cfg Config, logger zerolog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		ledger:    ledger,
		dir:       dir,
		templates: templates,
		notifier:  notifier,
		cfg:       cfg,
		locks:     newKeyedMutex(),
		log:       logger.With().Str("component", "scheduling").Logger(),
	}
}

type CreateInput struct {
	PatientID   string `json:"patientId"`
	DoctorID    string `json:"doctorId"`
	ScheduledAt string `json:"scheduledAt"`
	Notes       string `json:"notes"`
}

func parseID(field, s string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, ErrInvalidAppointment.WithDetail("%s is required", field)
	}
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, ErrInvalidAppointment.WithDetail("invalid %s", field)
	}
	return id, nil
}

// Create books a slot for the calling patient. Nothing is written unless
// every check passes.
func (s *Service) Create(ctx context.Context, caller auth.Principal, in CreateInput) (*Appointment, error) {
	patientID, err := parseID("patientId", in.PatientID)
	if err != nil {
		return nil, err
	}
	doctorID, err := parseID("doctorId", in.DoctorID)
	if err != nil {
		return nil, err
	}
	at, err := ParseScheduledAt(in.ScheduledAt, s.cfg.Location)
	if err != nil {
		return nil, err
	}
	notes := strings.TrimSpace(in.Notes)
	if err := validateNotes(notes); err != nil {
		return nil, err
	}

	patient, err := s.dir.GetUser(ctx, patientID)
	if err != nil {
		return nil, err
	}
	doctor, err := s.dir.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !caller.IsPatient() || caller.ID != patientID {
		return nil, ErrForbidden.WithDetail("appointments can only be booked by the patient")
	}
	if err := s.checkWindow(ctx, doctorID, at); err != nil {
		return nil, err
	}

	a := &Appointment{
		PatientID:   patientID,
		DoctorID:    doctorID,
		ScheduledAt: at,
		EndsAt:      at.Add(doctor.SlotDuration()),
		Notes:       notes,
	}
	unlock := s.locks.Lock(doctorID)
	err = s.ledger.Reserve(ctx, a)
	unlock()
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("appointment_id", a.ID.String()).Str("doctor_id", doctorID.String()).
		Time("scheduled_at", a.ScheduledAt).Msg("appointment booked")
	s.notify(ctx, notification.KindConfirmed, a, patient, doctor)
	return a, nil
}

// checkWindow requires at to fall on a working day of the doctor, at or
// after opening and before closing.
func (s *Service) checkWindow(ctx context.Context, doctorID uuid.UUID, at time.Time) error {
	tpl, err := s.templates.GetTemplate(ctx, doctorID)
	if err != nil {
		return err
	}
	local := at.In(s.cfg.Location)
	open, close, ok := tpl.Window(local.Weekday())
	if !ok {
		return ErrOutsideAvailability.WithDetail("doctor is not available on %s", local.Weekday())
	}
	if tod := availability.TimeOfDayOf(local); tod < open || tod >= close {
		return ErrOutsideAvailability.WithDetail("%s is outside the doctor's hours (%s-%s)", tod, open, close)
	}
	return nil
}

// load returns the appointment if caller is a party to it.
func (s *Service) load(ctx context.Context, caller auth.Principal, id uuid.UUID) (*Appointment, error) {
	a, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsParty(caller.ID) {
		return nil, ErrForbidden
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, caller auth.Principal, id uuid.UUID) (*Appointment, error) {
	return s.load(ctx, caller, id)
}

// Cancel releases a scheduled appointment. The record is kept.
func (s *Service) Cancel(ctx context.Context, caller auth.Principal, id uuid.UUID) (*Appointment, error) {
	a, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusScheduled {
		return nil, ErrNotScheduled.WithDetail("appointment is already %s", a.Status)
	}
	a, err = s.ledger.Update(ctx, id, StatusScheduled, StatusCancelled)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("appointment_id", id.String()).Str("by", caller.Role).Msg("appointment cancelled")
	s.notifyParties(ctx, notification.KindCancelled, a)
	return a, nil
}

// Reschedule moves a scheduled appointment to a new start. Moving to the
// current start succeeds.
func (s *Service) Reschedule(ctx context.Context, caller auth.Principal, id uuid.UUID, scheduledAt string) (*Appointment, error) {
	a, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusScheduled {
		return nil, ErrNotScheduled.WithDetail("appointment is already %s", a.Status)
	}
	at, err := ParseScheduledAt(scheduledAt, s.cfg.Location)
	if err != nil {
		return nil, err
	}
	doctor, err := s.dir.GetDoctor(ctx, a.DoctorID)
	if err != nil {
		return nil, err
	}
	if err := s.checkWindow(ctx, a.DoctorID, at); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(a.DoctorID)
	moved, err := s.ledger.Move(ctx, id, at, at.Add(doctor.SlotDuration()))
	unlock()
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("appointment_id", id.String()).Time("scheduled_at", at).Msg("appointment rescheduled")
	if patient, err := s.dir.GetUser(ctx, moved.PatientID); err == nil {
		s.notify(ctx, notification.KindRescheduled, moved, patient, doctor)
	} else {
		s.log.Warn().Err(err).Str("appointment_id", id.String()).Msg("skip notification: patient lookup failed")
	}
	return moved, nil
}

// ListQuery selects one party's appointments. StartDate and EndDate are
// inclusive calendar days in the service location; zero leaves them open.
type ListQuery struct {
	UserID    uuid.UUID
	StartDate time.Time
	EndDate   time.Time
	Status    Status
	Page      int
	Limit     int
}

func (s *Service) ListForUser(ctx context.Context, caller auth.Principal, q ListQuery) ([]*Appointment, int, error) {
	if !caller.IsPatient() || caller.ID != q.UserID {
		return nil, 0, ErrForbidden.WithDetail("patients can only list their own appointments")
	}
	lq, err := s.query(q)
	if err != nil {
		return nil, 0, err
	}
	lq.PatientID = q.UserID
	return s.list(ctx, lq)
}

// ListForDoctor is ListForUser keyed by doctor; q.UserID is the doctor.
func (s *Service) ListForDoctor(ctx context.Context, caller auth.Principal, q ListQuery) ([]*Appointment, int, error) {
	if !caller.IsDoctor() || caller.ID != q.UserID {
		return nil, 0, ErrForbidden.WithDetail("doctors can only list their own appointments")
	}
	lq, err := s.query(q)
	if err != nil {
		return nil, 0, err
	}
	lq.DoctorID = q.UserID
	return s.list(ctx, lq)
}

func (s *Service) query(q ListQuery) (Query, error) {
	if q.Status != "" && !q.Status.Valid() {
		return Query{}, ErrInvalidAppointment.WithDetail("invalid status %q", q.Status)
	}
	if !q.StartDate.IsZero() && !q.EndDate.IsZero() && q.EndDate.Before(q.StartDate) {
		return Query{}, ErrInvalidAppointment.WithDetail("endDate must not be before startDate")
	}
	lq := Query{Status: q.Status, Limit: q.Limit}
	if q.Page > 1 && q.Limit > 0 {
		lq.Offset = (q.Page - 1) * q.Limit
	}
	if !q.StartDate.IsZero() {
		lq.From, _ = DayBounds(q.StartDate, s.cfg.Location)
	}
	if !q.EndDate.IsZero() {
		_, lq.To = DayBounds(q.EndDate, s.cfg.Location)
	}
	return lq, nil
}

func (s *Service) list(ctx context.Context, q Query) ([]*Appointment, int, error) {
	total, err := s.ledger.Count(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	items, err := s.ledger.List(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []*Appointment{}
	}
	return items, total, nil
}

// -- Notifications --

func (s *Service) notifyParties(ctx context.Context, kind notification.Kind, a *Appointment) {
	patient, err := s.dir.GetUser(ctx, a.PatientID)
	if err != nil {
		s.log.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("skip notification: patient lookup failed")
		return
	}
	doctor, err := s.dir.GetDoctor(ctx, a.DoctorID)
	if err != nil {
		s.log.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("skip notification: doctor lookup failed")
		return
	}
	s.notify(ctx, kind, a, patient, doctor)
}

func (s *Service) notify(ctx context.Context, kind notification.Kind, a *Appointment, patient *directory.User, doctor *directory.Doctor) {
	s.notifier.Notify(ctx, appointmentEvent(kind, a, patient, doctor, s.cfg.SMSCountryCode))
}

func appointmentEvent(kind notification.Kind, a *Appointment, patient *directory.User, doctor *directory.Doctor, countryCode string) notification.Event {
	r := notification.Recipient{Name: patient.Name, Phone: notification.E164(patient.Mobile, countryCode)}
	if patient.Email != nil {
		r.Email = *patient.Email
	}
	return notification.Event{
		Kind:          kind,
		AppointmentID: a.ID,
		Recipient:     r,
		DoctorName:    doctor.Name,
		When:          a.ScheduledAt,
	}
}
