package directory

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medicall/booking/internal/platform/auth"
	"github.com/medicall/booking/internal/platform/notification"
	"github.com/medicall/booking/internal/platform/otp"
	"github.com/medicall/booking/pkg/apperr"
)

var (
	ErrInvalidUser        = apperr.Validation("invalid user")
	ErrInvalidDoctor      = apperr.Validation("invalid doctor")
	ErrUserNotFound       = apperr.NotFound("user not found")
	ErrDoctorNotFound     = apperr.NotFound("doctor not found")
	ErrMobileTaken        = apperr.Duplicate("mobile number already registered")
	ErrUsernameTaken      = apperr.Duplicate("username already taken")
	ErrInvalidCredentials = apperr.Unauthorized("invalid username or password")
	ErrInvalidOTP         = apperr.Validation("invalid or expired otp")
)

// TxFunc runs fn inside one transaction carried on ctx.
type TxFunc func(ctx context.Context, fn func(ctx context.Context) error) error

// TemplateSeeder writes the initial availability of a new doctor.
type TemplateSeeder interface {
	Seed(ctx context.Context, doctorID uuid.UUID) error
}

// Notifier queues an event for delivery without waiting on it.
type Notifier interface {
	Notify(ctx context.Context, ev notification.Event)
}

type Config struct {
	DefaultSlotMinutes int
	OTPTTL             time.Duration
	SMSCountryCode     string
}

type Service struct {
	users    UserRepository
	doctors  DoctorRepository
	seeder   TemplateSeeder
	inTx     TxFunc
	codes    otp.Store
	tokens   *auth.TokenIssuer
	notifier Notifier
	cfg      Config
	log      zerolog.Logger
}

func NewService(users UserRepository, doctors DoctorRepository, seeder TemplateSeeder, inTx TxFunc,
	codes otp.Store, tokens *auth.TokenIssuer, notifier Notifier, cfg Config, logger zerolog.Logger) *Service {
	if cfg.DefaultSlotMinutes <= 0 {
		cfg.DefaultSlotMinutes = 30
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 5 * time.Minute
	}
	if inTx == nil {
		inTx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	return &Service{
		users: users, doctors: doctors, seeder: seeder, inTx: inTx,
		codes: codes, tokens: tokens, notifier: notifier, cfg: cfg,
		log: logger.With().Str("component", "directory").Logger(),
	}
}

// -- Patients --

type RegisterUserInput struct {
	Mobile string  `json:"mobile"`
	Name   string  `json:"name"`
	Email  *string `json:"email"`
}

func (s *Service) RegisterUser(ctx context.Context, in RegisterUserInput) (*User, error) {
	u := &User{Mobile: strings.TrimSpace(in.Mobile), Name: strings.TrimSpace(in.Name)}
	if !validMobile(u.Mobile) {
		return nil, ErrInvalidUser.WithDetail("mobile must be exactly 10 digits")
	}
	if utf8.RuneCountInString(u.Name) < 2 {
		return nil, ErrInvalidUser.WithDetail("name must be at least 2 characters")
	}
	if in.Email != nil && strings.TrimSpace(*in.Email) != "" {
		addr, err := mail.ParseAddress(strings.TrimSpace(*in.Email))
		if err != nil || addr.Name != "" {
			return nil, ErrInvalidUser.WithDetail("invalid email address")
		}
		email := addr.Address
		u.Email = &email
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// SendOTP issues a new login code for a registered mobile and sends it by SMS.
func (s *Service) SendOTP(ctx context.Context, mobile string) error {
	mobile = strings.TrimSpace(mobile)
	if !validMobile(mobile) {
		return ErrInvalidUser.WithDetail("mobile must be exactly 10 digits")
	}
	u, err := s.users.GetByMobile(ctx, mobile)
	if err != nil {
		return err
	}
	code, err := otp.Generate()
	if err != nil {
		return err
	}
	if err := s.codes.Save(ctx, u.Mobile, code, s.cfg.OTPTTL); err != nil {
		return fmt.Errorf("save otp: %w", err)
	}
	s.notifier.Notify(ctx, notification.Event{
		Kind:      notification.KindOTP,
		Recipient: notification.Recipient{Name: u.Name, Phone: notification.E164(u.Mobile, s.cfg.SMSCountryCode)},
		Code:      code,
	})
	s.log.Info().Str("user_id", u.ID.String()).Msg("otp issued")
	return nil
}

// VerifyOTP consumes a login code and returns a patient token.
func (s *Service) VerifyOTP(ctx context.Context, mobile, code string) (string, *User, error) {
	mobile, code = strings.TrimSpace(mobile), strings.TrimSpace(code)
	if mobile == "" || code == "" {
		return "", nil, ErrInvalidOTP.WithDetail("mobile and otp are required")
	}
	if err := s.codes.Verify(ctx, mobile, code); err != nil {
		if errors.Is(err, otp.ErrCodeMismatch) || errors.Is(err, otp.ErrCodeExpired) {
			return "", nil, ErrInvalidOTP
		}
		return "", nil, fmt.Errorf("verify otp: %w", err)
	}
	u, err := s.users.GetByMobile(ctx, mobile)
	if err != nil {
		return "", nil, err
	}
	token, err := s.tokens.Issue(u.ID, auth.RolePatient)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	return token, u, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// -- Doctors --

type RegisterDoctorInput struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	Name           string `json:"name"`
	Specialty      string `json:"specialty"`
	ProfilePicture string `json:"profilePicture"`
	SlotMinutes    int    `json:"slotMinutes"`
}

// RegisterDoctor creates the doctor and their all-unavailable template in one
// transaction.
func (s *Service) RegisterDoctor(ctx context.Context, in RegisterDoctorInput) (*Doctor, error) {
	d := &Doctor{
		Username:       strings.TrimSpace(in.Username),
		Name:           strings.TrimSpace(in.Name),
		Specialty:      strings.TrimSpace(in.Specialty),
		ProfilePicture: strings.TrimSpace(in.ProfilePicture),
		SlotMinutes:    in.SlotMinutes,
	}
	switch {
	case utf8.RuneCountInString(d.Username) < 4:
		return nil, ErrInvalidDoctor.WithDetail("username must be at least 4 characters")
	case len(in.Password) < 8:
		return nil, ErrInvalidDoctor.WithDetail("password must be at least 8 characters")
	case len(in.Password) > 72:
		return nil, ErrInvalidDoctor.WithDetail("password must be at most 72 bytes")
	case utf8.RuneCountInString(d.Name) < 2:
		return nil, ErrInvalidDoctor.WithDetail("name must be at least 2 characters")
	case d.SlotMinutes < 0 || d.SlotMinutes > 24*60:
		return nil, ErrInvalidDoctor.WithDetail("slotMinutes must be between 1 and 1440")
	}
	if d.SlotMinutes == 0 {
		d.SlotMinutes = s.cfg.DefaultSlotMinutes
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	d.PasswordHash = hash

	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.doctors.Create(ctx, d); err != nil {
			return err
		}
		return s.seeder.Seed(ctx, d.ID)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("doctor_id", d.ID.String()).Msg("doctor registered")
	return d, nil
}

// LoginDoctor checks the password and returns a doctor token.
func (s *Service) LoginDoctor(ctx context.Context, username, password string) (string, *Doctor, error) {
	d, err := s.doctors.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrDoctorNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if !auth.CheckPassword(d.PasswordHash, password) {
		return "", nil, ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(d.ID, auth.RoleDoctor)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	return token, d, nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, limit, offset)
}

func validMobile(s string) bool {
	if len(s) != 10 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
