package directory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medicall/booking/internal/platform/auth"
	"github.com/medicall/booking/internal/platform/notification"
	"github.com/medicall/booking/internal/platform/otp"
)

// -- Mock Repositories --

type mockUserRepo struct {
	mu    sync.Mutex
	store map[uuid.UUID]*User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{store: make(map[uuid.UUID]*User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.store {
		if existing.Mobile == u.Mobile {
			return ErrMobileTaken
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	m.store[u.ID] = u
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (m *mockUserRepo) GetByMobile(_ context.Context, mobile string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.store {
		if u.Mobile == mobile {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

type mockDoctorRepo struct {
	mu    sync.Mutex
	store map[uuid.UUID]*Doctor
}

func newMockDoctorRepo() *mockDoctorRepo {
	return &mockDoctorRepo{store: make(map[uuid.UUID]*Doctor)}
}

func (m *mockDoctorRepo) Create(_ context.Context, d *Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.store {
		if existing.Username == d.Username {
			return ErrUsernameTaken
		}
	}
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	m.store[d.ID] = d
	return nil
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return d, nil
}

func (m *mockDoctorRepo) GetByUsername(_ context.Context, username string) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.store {
		if d.Username == username {
			return d, nil
		}
	}
	return nil, ErrDoctorNotFound
}

func (m *mockDoctorRepo) List(_ context.Context, limit, offset int) ([]*Doctor, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Doctor
	for _, d := range m.store {
		all = append(all, d)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

type mockSeeder struct {
	seeded []uuid.UUID
	err    error
}

func (m *mockSeeder) Seed(_ context.Context, id uuid.UUID) error {
	if m.err != nil {
		return m.err
	}
	m.seeded = append(m.seeded, id)
	return nil
}

type mockNotifier struct {
	mu     sync.Mutex
	events []notification.Event
}

func (m *mockNotifier) Notify(_ context.Context, ev notification.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *mockNotifier) last() (notification.Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return notification.Event{}, false
	}
	return m.events[len(m.events)-1], true
}

type testDeps struct {
	svc      *Service
	users    *mockUserRepo
	doctors  *mockDoctorRepo
	seeder   *mockSeeder
	codes    *otp.MemoryStore
	notifier *mockNotifier
	tokens   *auth.TokenIssuer
}

func newTestService() *testDeps {
	d := &testDeps{
		users:    newMockUserRepo(),
		doctors:  newMockDoctorRepo(),
		seeder:   &mockSeeder{},
		codes:    otp.NewMemoryStore(),
		notifier: &mockNotifier{},
		tokens:   auth.NewTokenIssuer("test-secret-test-secret-test-secret", time.Hour),
	}
	d.svc = NewService(d.users, d.doctors, d.seeder, nil, d.codes, d.tokens, d.notifier,
		Config{DefaultSlotMinutes: 30, OTPTTL: time.Minute, SMSCountryCode: "+91"}, zerolog.Nop())
	return d
}

func strPtr(s string) *string { return &s }

// -- Patients --

func TestService_RegisterUser(t *testing.T) {
	d := newTestService()
	u, err := d.svc.RegisterUser(context.Background(), RegisterUserInput{
		Mobile: "9876543210", Name: "Asha", Email: strPtr(" asha@example.com "),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if u.Email == nil || *u.Email != "asha@example.com" {
		t.Errorf("expected trimmed email, got %v", u.Email)
	}
}

func TestService_RegisterUser_Validation(t *testing.T) {
	d := newTestService()
	tests := []struct {
		name string
		in   RegisterUserInput
	}{
		{"short mobile", RegisterUserInput{Mobile: "12345", Name: "Asha"}},
		{"letters in mobile", RegisterUserInput{Mobile: "98765abcde", Name: "Asha"}},
		{"short name", RegisterUserInput{Mobile: "9876543210", Name: "A"}},
		{"bad email", RegisterUserInput{Mobile: "9876543210", Name: "Asha", Email: strPtr("not-an-email")}},
		{"display name email", RegisterUserInput{Mobile: "9876543210", Name: "Asha", Email: strPtr("Asha <a@b.co>")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.svc.RegisterUser(context.Background(), tt.in)
			if !errors.Is(err, ErrInvalidUser) {
				t.Errorf("expected ErrInvalidUser, got %v", err)
			}
		})
	}
}

func TestService_RegisterUser_EmptyEmailIgnored(t *testing.T) {
	d := newTestService()
	u, err := d.svc.RegisterUser(context.Background(), RegisterUserInput{Mobile: "9876543210", Name: "Asha", Email: strPtr("")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Email != nil {
		t.Errorf("expected no email, got %q", *u.Email)
	}
}

func TestService_RegisterUser_DuplicateMobile(t *testing.T) {
	d := newTestService()
	in := RegisterUserInput{Mobile: "9876543210", Name: "Asha"}
	if _, err := d.svc.RegisterUser(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if _, err := d.svc.RegisterUser(context.Background(), in); !errors.Is(err, ErrMobileTaken) {
		t.Errorf("expected ErrMobileTaken, got %v", err)
	}
}

func TestService_OTPLogin(t *testing.T) {
	d := newTestService()
	ctx := context.Background()
	u, _ := d.svc.RegisterUser(ctx, RegisterUserInput{Mobile: "9876543210", Name: "Asha"})

	if err := d.svc.SendOTP(ctx, "9876543210"); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	ev, ok := d.notifier.last()
	if !ok {
		t.Fatal("expected an otp notification")
	}
	if ev.Kind != notification.KindOTP || ev.Recipient.Phone != "+919876543210" || len(ev.Code) != otp.CodeLength {
		t.Errorf("unexpected event %+v", ev)
	}

	token, got, err := d.svc.VerifyOTP(ctx, "9876543210", ev.Code)
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("expected user %s, got %s", u.ID, got.ID)
	}
	claims, err := d.tokens.Parse(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != u.ID.String() || claims.Role != auth.RolePatient {
		t.Errorf("unexpected claims %+v", claims)
	}

	if _, _, err := d.svc.VerifyOTP(ctx, "9876543210", ev.Code); !errors.Is(err, ErrInvalidOTP) {
		t.Errorf("expected code to be single use, got %v", err)
	}
}

func TestService_VerifyOTP_WrongCode(t *testing.T) {
	d := newTestService()
	ctx := context.Background()
	d.svc.RegisterUser(ctx, RegisterUserInput{Mobile: "9876543210", Name: "Asha"})
	d.svc.SendOTP(ctx, "9876543210")
	ev, _ := d.notifier.last()

	wrong := "000000"
	if ev.Code == wrong {
		wrong = "111111"
	}
	if _, _, err := d.svc.VerifyOTP(ctx, "9876543210", wrong); !errors.Is(err, ErrInvalidOTP) {
		t.Errorf("expected ErrInvalidOTP, got %v", err)
	}
}

func TestService_SendOTP_UnknownMobile(t *testing.T) {
	d := newTestService()
	if err := d.svc.SendOTP(context.Background(), "9999999999"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
	if _, ok := d.notifier.last(); ok {
		t.Error("expected no notification")
	}
}

// -- Doctors --

func validDoctor() RegisterDoctorInput {
	return RegisterDoctorInput{Username: "drmehta", Password: "s3cretpass", Name: "Dr Mehta", Specialty: "Cardiology"}
}

func TestService_RegisterDoctor(t *testing.T) {
	d := newTestService()
	doc, err := d.svc.RegisterDoctor(context.Background(), validDoctor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.SlotMinutes != 30 {
		t.Errorf("expected default slot 30, got %d", doc.SlotMinutes)
	}
	if doc.PasswordHash == "" || doc.PasswordHash == "s3cretpass" {
		t.Error("expected password to be hashed")
	}
	if len(d.seeder.seeded) != 1 || d.seeder.seeded[0] != doc.ID {
		t.Errorf("expected template to be seeded for %s, got %v", doc.ID, d.seeder.seeded)
	}
}

func TestService_RegisterDoctor_Validation(t *testing.T) {
	d := newTestService()
	tests := []struct {
		name   string
		mutate func(in *RegisterDoctorInput)
	}{
		{"short username", func(in *RegisterDoctorInput) { in.Username = "abc" }},
		{"short password", func(in *RegisterDoctorInput) { in.Password = "1234567" }},
		{"short name", func(in *RegisterDoctorInput) { in.Name = "X" }},
		{"negative slot", func(in *RegisterDoctorInput) { in.SlotMinutes = -5 }},
		{"slot over a day", func(in *RegisterDoctorInput) { in.SlotMinutes = 1441 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validDoctor()
			tt.mutate(&in)
			if _, err := d.svc.RegisterDoctor(context.Background(), in); !errors.Is(err, ErrInvalidDoctor) {
				t.Errorf("expected ErrInvalidDoctor, got %v", err)
			}
		})
	}
	if len(d.seeder.seeded) != 0 {
		t.Error("expected nothing to be seeded")
	}
}

func TestService_RegisterDoctor_DuplicateUsername(t *testing.T) {
	d := newTestService()
	d.svc.RegisterDoctor(context.Background(), validDoctor())
	if _, err := d.svc.RegisterDoctor(context.Background(), validDoctor()); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestService_RegisterDoctor_SeedFailureAborts(t *testing.T) {
	d := newTestService()
	boom := errors.New("seed failed")
	d.seeder.err = boom
	var committed bool
	d.svc.inTx = func(ctx context.Context, fn func(ctx context.Context) error) error {
		if err := fn(ctx); err != nil {
			return err
		}
		committed = true
		return nil
	}
	if _, err := d.svc.RegisterDoctor(context.Background(), validDoctor()); !errors.Is(err, boom) {
		t.Errorf("expected seed error, got %v", err)
	}
	if committed {
		t.Error("expected the transaction not to commit")
	}
}

func TestService_LoginDoctor(t *testing.T) {
	d := newTestService()
	ctx := context.Background()
	doc, _ := d.svc.RegisterDoctor(ctx, validDoctor())

	token, got, err := d.svc.LoginDoctor(ctx, "drmehta", "s3cretpass")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != doc.ID {
		t.Errorf("expected doctor %s, got %s", doc.ID, got.ID)
	}
	claims, err := d.tokens.Parse(token)
	if err != nil || claims.Role != auth.RoleDoctor {
		t.Errorf("expected doctor token, got %+v (%v)", claims, err)
	}

	if _, _, err := d.svc.LoginDoctor(ctx, "drmehta", "wrongpass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := d.svc.LoginDoctor(ctx, "nobody", "s3cretpass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown username, got %v", err)
	}
}

func TestService_ListDoctors(t *testing.T) {
	d := newTestService()
	ctx := context.Background()
	for _, name := range []string{"drcharlie", "dralpha", "drbravo"} {
		in := validDoctor()
		in.Username, in.Name = name, name
		if _, err := d.svc.RegisterDoctor(ctx, in); err != nil {
			t.Fatal(err)
		}
	}
	got, total, err := d.svc.ListDoctors(ctx, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(got) != 2 || got[0].Name != "dralpha" {
		t.Errorf("unexpected page: total=%d len=%d", total, len(got))
	}
}
