package booking

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// DateTimeLayout is the canonical DD.MM.YYYY HH:MM representation.
	DateTimeLayout = "02.01.2006 15:04"
	// dateTimeInput also accepts single-digit day, month and hour.
	dateTimeInput = "2.1.2006 15:04"
)

var (
	nonDigits = regexp.MustCompile(`\D+`)
	allDigits = regexp.MustCompile(`^\d+$`)
)

// PhoneRule describes the only phone format accepted from typed input.
type PhoneRule struct {
	Prefix string // country calling code, digits only
	Digits int    // total digit count including the prefix
}

// DefaultPhoneRule accepts Ukrainian numbers, +380XXXXXXXXX.
var DefaultPhoneRule = PhoneRule{Prefix: "380", Digits: 12}

// Example renders the expected format for prompts, e.g. +380XXXXXXXXX.
func (r PhoneRule) Example() string {
	n := r.Digits - len(r.Prefix)
	if n < 0 {
		n = 0
	}
	return "+" + r.Prefix + strings.Repeat("X", n)
}

// NormalizePhone strips every non-digit character and checks the result
// against the rule. The canonical form is "+" followed by the digits.
func (r PhoneRule) NormalizePhone(raw string) (string, error) {
	digits := nonDigits.ReplaceAllString(raw, "")
	if len(digits) != r.Digits || !strings.HasPrefix(digits, r.Prefix) {
		return "", newInputError("invalid_phone", "Невірний номер. Формат: "+r.Example())
	}
	return "+" + digits, nil
}

// NormalizeContactPhone canonicalises a number taken from a shared contact.
// The platform vouches for it, so only the presence of digits is checked.
func NormalizeContactPhone(raw string) (string, error) {
	digits := nonDigits.ReplaceAllString(raw, "")
	if digits == "" {
		return "", newInputError("invalid_phone", "Контакт не містить номера телефону.")
	}
	return "+" + digits, nil
}

// ParseGuests accepts a positive decimal integer.
func ParseGuests(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if !allDigits.MatchString(s) {
		return 0, newInputError("invalid_guests", "Введіть коректну кількість гостей або 'Відміна' для скасування.")
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, newInputError("invalid_guests", "Введіть коректну кількість гостей або 'Відміна' для скасування.")
	}
	return n, nil
}

// ParseName trims the name and rejects an empty one.
func ParseName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", newInputError("empty_name", "Введіть Ваше ім'я або 'Відміна' для скасування.")
	}
	return name, nil
}

// NormalizeDateTime re-serialises a D.M.YYYY H:MM value as DD.MM.YYYY HH:MM.
// Text that does not parse is kept verbatim; only empty input is rejected.
func NormalizeDateTime(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", newInputError("empty_datetime", "Вкажіть дату та час у форматі ДД.ММ.РРРР ГГ:ХХ.")
	}
	t, err := time.Parse(dateTimeInput, s)
	if err != nil {
		return s, nil
	}
	return t.Format(DateTimeLayout), nil
}

// FormData is the full booking form sent by the embedded web form.
type FormData struct {
	Place    string
	DateTime string
	Name     string
	Guests   int
}

type rawForm struct {
	Place    string          `json:"place"`
	DateTime string          `json:"datetime"`
	Name     string          `json:"name"`
	Guests   json.RawMessage `json:"guests"`
}

func malformedPayload() error {
	return newInputError("malformed_payload", "Помилка в даних форми. Спробуйте ще раз.")
}

func incompletePayload() error {
	return newInputError("incomplete_payload", "Деякі поля порожні. Спробуйте ще раз.")
}

// ParseForm decodes and validates a full web form payload. Guests may be sent
// either as a JSON number or as a string.
func ParseForm(payload []byte) (FormData, error) {
	var rf rawForm
	if err := json.Unmarshal(payload, &rf); err != nil {
		return FormData{}, malformedPayload()
	}
	guestsText, err := rawGuests(rf.Guests)
	if err != nil {
		return FormData{}, err
	}
	if strings.TrimSpace(rf.Place) == "" || strings.TrimSpace(rf.DateTime) == "" ||
		strings.TrimSpace(rf.Name) == "" || guestsText == "" {
		return FormData{}, incompletePayload()
	}

	guests, err := ParseGuests(guestsText)
	if err != nil {
		return FormData{}, err
	}
	name, err := ParseName(rf.Name)
	if err != nil {
		return FormData{}, err
	}
	dt, err := NormalizeDateTime(rf.DateTime)
	if err != nil {
		return FormData{}, err
	}
	return FormData{
		Place:    strings.TrimSpace(rf.Place),
		DateTime: dt,
		Name:     name,
		Guests:   guests,
	}, nil
}

func rawGuests(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", malformedPayload()
		}
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", malformedPayload()
	}
	return n.String(), nil
}

// ParseDateTimePayload extracts the datetime from a structured payload. The
// payload is either an object with a "datetime" key or a bare JSON string.
func ParseDateTimePayload(payload []byte) (string, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return "", malformedPayload()
	}
	var value string
	if trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return "", malformedPayload()
		}
	} else {
		var obj struct {
			DateTime *string `json:"datetime"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return "", malformedPayload()
		}
		if obj.DateTime == nil {
			return "", incompletePayload()
		}
		value = *obj.DateTime
	}
	if strings.TrimSpace(value) == "" {
		return "", incompletePayload()
	}
	return NormalizeDateTime(value)
}

// Locations is the fixed set of establishments offered to guests.
type Locations []string

// Contains reports an exact, case-sensitive match.
func (l Locations) Contains(name string) bool {
	for _, loc := range l {
		if loc == name {
			return true
		}
	}
	return false
}

func (l Locations) validate(name string) error {
	if !l.Contains(name) {
		return newInputError("invalid_location", "Оберіть локацію зі списку.")
	}
	return nil
}
