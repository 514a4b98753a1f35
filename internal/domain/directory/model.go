package directory

import (
	"time"

	"github.com/google/uuid"
)

// User is a patient. Patients sign in with a one-time code sent to Mobile.
type User struct {
	ID        uuid.UUID `json:"id"`
	Mobile    string    `json:"mobile"`
	Name      string    `json:"name"`
	Email     *string   `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Doctor offers appointments in fixed slots of SlotMinutes.
type Doctor struct {
	ID             uuid.UUID `json:"id"`
	Username       string    `json:"username"`
	PasswordHash   string    `json:"-"`
	Name           string    `json:"name"`
	Specialty      string    `json:"specialty"`
	ProfilePicture string    `json:"profilePicture"`
	SlotMinutes    int       `json:"slotMinutes"`
	CreatedAt      time.Time `json:"createdAt"`
}

// SlotDuration is the length of one appointment with this doctor.
func (d *Doctor) SlotDuration() time.Duration {
	return time.Duration(d.SlotMinutes) * time.Minute
}

// DoctorSummary is the public listing view of a doctor.
type DoctorSummary struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Specialty      string    `json:"specialty"`
	ProfilePicture string    `json:"profilePicture"`
}

func (d *Doctor) Summary() DoctorSummary {
	return DoctorSummary{ID: d.ID, Name: d.Name, Specialty: d.Specialty, ProfilePicture: d.ProfilePicture}
}
