package booking

import "time"

// PhoneMethod is how the guest chose to provide a phone number.
type PhoneMethod string

const (
	PhoneMethodUnset   PhoneMethod = ""
	PhoneMethodManual  PhoneMethod = "manual"
	PhoneMethodContact PhoneMethod = "contact"
)

// Fields is the partial booking collected so far.
type Fields struct {
	Establishment string      `json:"establishment,omitempty"`
	DateTime      string      `json:"datetime,omitempty"`
	Guests        int         `json:"guests,omitempty"`
	Name          string      `json:"name,omitempty"`
	Phone         string      `json:"phone,omitempty"`
	PhoneMethod   PhoneMethod `json:"phone_method,omitempty"`
}

// Record returns the completed booking, or false while any field is missing.
func (f Fields) Record() (Record, bool) {
	if f.Establishment == "" || f.DateTime == "" || f.Guests <= 0 || f.Name == "" || f.Phone == "" {
		return Record{}, false
	}
	return Record{
		Establishment: f.Establishment,
		DateTime:      f.DateTime,
		Guests:        f.Guests,
		Name:          f.Name,
		Phone:         f.Phone,
	}, true
}

// clear resets a single field. Clearing the phone also forgets the method.
func (f *Fields) clear(field Field) {
	switch field {
	case FieldLocation:
		f.Establishment = ""
	case FieldGuests:
		f.Guests = 0
	case FieldName:
		f.Name = ""
	case FieldPhone:
		f.Phone = ""
		f.PhoneMethod = PhoneMethodUnset
	case FieldDateTime:
		f.DateTime = ""
	}
}

// Record is a fully validated booking ready for submission.
type Record struct {
	Establishment string `json:"establishment"`
	DateTime      string `json:"datetime"`
	Guests        int    `json:"guests"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
}

// Session is the per-user dialogue state.
type Session struct {
	UserID    int64     `json:"user_id"`
	ChatID    int64     `json:"chat_id"`
	State     State     `json:"state"`
	Fields    Fields    `json:"fields"`
	Attempts  int       `json:"attempts,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession returns an idle session with no fields.
func NewSession(userID, chatID int64, now time.Time) Session {
	return Session{
		UserID:    userID,
		ChatID:    chatID,
		State:     StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsExpired checks whether the session has been idle longer than ttl.
// A non-positive ttl never expires.
func (s Session) IsExpired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(s.UpdatedAt) > ttl
}
