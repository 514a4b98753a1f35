// Package notification delivers booking and login events to patients by
// email and SMS. Events are queued on a Dispatcher and sent by a worker pool
// so request handlers never wait on a provider.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// Kind identifies what happened.
type Kind string

const (
	KindConfirmed   Kind = "confirmed"
	KindCancelled   Kind = "cancelled"
	KindRescheduled Kind = "rescheduled"
	KindReminder    Kind = "reminder"
	KindOTP         Kind = "otp"
)

// Recipient is who receives the message. Empty Email or Phone skips that
// channel.
type Recipient struct {
	Name  string
	Email string
	Phone string
}

// Event is a lifecycle transition or login code to deliver.
type Event struct {
	Kind          Kind
	AppointmentID uuid.UUID
	Recipient     Recipient
	DoctorName    string
	When          time.Time
	// Code is the one-time password for KindOTP.
	Code string
}

// ---------------------------------------------------------------------------
// Sender Interfaces
// ---------------------------------------------------------------------------

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template is the subject and body for one event kind. An empty Subject
// marks an SMS-only template.
type Template struct {
	Kind    Kind
	Subject string
	Body    string
	SMS     string
}

// TemplateEngine renders {{key}} placeholders for each event kind.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[Kind]*Template
}

// NewTemplateEngine creates a TemplateEngine with the booking templates
// registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[Kind]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			Kind:    KindConfirmed,
			Subject: "Appointment confirmed with {{doctor}}",
			Body:    "Dear {{name}}, your appointment with {{doctor}} on {{date}} at {{time}} is confirmed.",
			SMS:     "Medicall: appointment with {{doctor}} confirmed for {{date}} {{time}}.",
		},
		{
			Kind:    KindCancelled,
			Subject: "Appointment cancelled",
			Body:    "Dear {{name}}, your appointment with {{doctor}} on {{date}} at {{time}} has been cancelled.",
			SMS:     "Medicall: appointment with {{doctor}} on {{date}} {{time}} was cancelled.",
		},
		{
			Kind:    KindRescheduled,
			Subject: "Appointment rescheduled",
			Body:    "Dear {{name}}, your appointment with {{doctor}} has been moved to {{date}} at {{time}}.",
			SMS:     "Medicall: appointment with {{doctor}} moved to {{date}} {{time}}.",
		},
		{
			Kind:    KindReminder,
			Subject: "Reminder: appointment tomorrow with {{doctor}}",
			Body:    "Dear {{name}}, this is a reminder of your appointment with {{doctor}} on {{date}} at {{time}}.",
			SMS:     "Medicall reminder: {{doctor}} on {{date}} at {{time}}.",
		},
		{
			Kind: KindOTP,
			SMS:  "Your Medicall verification code is {{code}}. It expires in 5 minutes.",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.Kind] = &t
	}
}

// RegisterTemplate adds or replaces the template for t.Kind.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.Kind] = &t
}

// Rendered is a template after substitution.
type Rendered struct {
	Subject string
	Body    string
	SMS     string
}

// Render fills the template for kind with data. Keys absent from data are
// left as-is.
func (e *TemplateEngine) Render(kind Kind, data map[string]string) (Rendered, error) {
	e.mu.RLock()
	t, ok := e.templates[kind]
	e.mu.RUnlock()
	if !ok {
		return Rendered{}, fmt.Errorf("template %q not found", kind)
	}

	out := Rendered{Subject: t.Subject, Body: t.Body, SMS: t.SMS}
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		out.Subject = strings.ReplaceAll(out.Subject, placeholder, v)
		out.Body = strings.ReplaceAll(out.Body, placeholder, v)
		out.SMS = strings.ReplaceAll(out.SMS, placeholder, v)
	}
	return out, nil
}

// templateData builds the placeholder values for ev with times rendered in loc.
func templateData(ev Event, loc *time.Location) map[string]string {
	data := map[string]string{
		"name":   ev.Recipient.Name,
		"doctor": ev.DoctorName,
		"code":   ev.Code,
	}
	if !ev.When.IsZero() {
		when := ev.When.In(loc)
		data["date"] = when.Format("Mon, 02 Jan 2006")
		data["time"] = when.Format("3:04 PM")
	}
	return data
}

// ---------------------------------------------------------------------------
// Mock Senders (test doubles)
// ---------------------------------------------------------------------------

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender. FailTimes makes the first
// n calls fail before succeeding.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailTimes  int
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail || len(m.calls) <= m.FailTimes {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// SMSCall records a single call to SendSMS.
type SMSCall struct {
	To   string
	Body string
}

// MockSMSSender is a test double for SMSSender.
type MockSMSSender struct {
	mu         sync.Mutex
	calls      []SMSCall
	ShouldFail bool
	FailError  string
}

// SendSMS records the call and optionally returns an error.
func (m *MockSMSSender) SendSMS(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SMSCall{To: to, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded SMS calls.
func (m *MockSMSSender) Calls() []SMSCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SMSCall, len(m.calls))
	copy(out, m.calls)
	return out
}
