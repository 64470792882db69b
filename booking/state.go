package booking

// State is the position of a session in the booking dialogue.
type State string

const (
	StateIdle                State = "idle"
	StateAwaitingLocation    State = "awaiting_location"
	StateAwaitingGuestCount  State = "awaiting_guest_count"
	StateAwaitingName        State = "awaiting_name"
	StateAwaitingPhoneMethod State = "awaiting_phone_method"
	StateAwaitingPhoneValue  State = "awaiting_phone_value"
	StateAwaitingDateTime    State = "awaiting_datetime"
	StateReviewingForm       State = "reviewing_form"
	StateSubmitting          State = "submitting"
)

// Collecting reports whether the state waits for user input. The review of a
// web form counts: the guest still has to confirm or change the values.
func (s State) Collecting() bool {
	switch s {
	case StateAwaitingLocation, StateAwaitingGuestCount, StateAwaitingName,
		StateAwaitingPhoneMethod, StateAwaitingPhoneValue, StateAwaitingDateTime,
		StateReviewingForm:
		return true
	}
	return false
}

// Cancellable reports whether a cancel event may reset the session.
// Submission is atomic, so the transient state is excluded.
func (s State) Cancellable() bool {
	return s.Collecting()
}

// Field names a collected booking field.
type Field string

const (
	FieldLocation Field = "location"
	FieldGuests   Field = "guests"
	FieldName     Field = "name"
	FieldPhone    Field = "phone"
	FieldDateTime Field = "datetime"
)

// collectionState maps a field to the state that collects it.
var collectionState = map[Field]State{
	FieldLocation: StateAwaitingLocation,
	FieldGuests:   StateAwaitingGuestCount,
	FieldName:     StateAwaitingName,
	FieldPhone:    StateAwaitingPhoneMethod,
	FieldDateTime: StateAwaitingDateTime,
}

// ParseField resolves a field name as used by edit commands.
func ParseField(name string) (Field, bool) {
	f := Field(name)
	_, ok := collectionState[f]
	return f, ok
}

// nextState returns the first collection state whose field is still missing,
// or StateSubmitting when everything is present.
func nextState(f Fields) State {
	switch {
	case f.Establishment == "":
		return StateAwaitingLocation
	case f.Guests <= 0:
		return StateAwaitingGuestCount
	case f.Name == "":
		return StateAwaitingName
	case f.Phone == "" && f.PhoneMethod == PhoneMethodUnset:
		return StateAwaitingPhoneMethod
	case f.Phone == "":
		return StateAwaitingPhoneValue
	case f.DateTime == "":
		return StateAwaitingDateTime
	}
	return StateSubmitting
}
