package booking

import "fmt"

// EventKind tags an inbound event.
type EventKind int

const (
	EventStart EventKind = iota + 1
	EventBeginBooking
	EventViewMenu
	EventCancel
	EventLocationChosen
	EventText
	EventPhoneMethodChosen
	EventContactShared
	EventFormSubmitted
	EventDatePicked
	EventEdit
	EventConfirm
	EventMyBookings
)

var eventNames = map[EventKind]string{
	EventStart:             "start",
	EventBeginBooking:      "begin_booking",
	EventViewMenu:          "view_menu",
	EventCancel:            "cancel",
	EventLocationChosen:    "location_chosen",
	EventText:              "text",
	EventPhoneMethodChosen: "phone_method_chosen",
	EventContactShared:     "contact_shared",
	EventFormSubmitted:     "form_submitted",
	EventDatePicked:        "date_picked",
	EventEdit:              "edit",
	EventConfirm:           "confirm",
	EventMyBookings:        "my_bookings",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is a user action already classified by the transport adapter.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind   EventKind
	UserID int64
	ChatID int64

	Text    string      // Text, LocationChosen
	Phone   string      // ContactShared
	Method  PhoneMethod // PhoneMethodChosen
	Payload []byte      // FormSubmitted
	Field   Field       // Edit
}

// Input returns the raw user input carried by the event, for logging.
func (e Event) Input() string {
	switch e.Kind {
	case EventContactShared:
		return e.Phone
	case EventFormSubmitted:
		return string(e.Payload)
	case EventPhoneMethodChosen:
		return string(e.Method)
	case EventEdit:
		return string(e.Field)
	}
	return e.Text
}
