package booking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

const (
	testUser = int64(1)
	testChat = int64(100)
)

var testLocations = Locations{"вул. Антоновича, 157", "пр-т. Тичини, 8"}

type sentPrompt struct {
	chatID int64
	prompt Prompt
}

type recordingMessenger struct {
	mu   sync.Mutex
	sent []sentPrompt
	err  error
}

func (m *recordingMessenger) Send(_ context.Context, chatID int64, p Prompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentPrompt{chatID: chatID, prompt: p})
	return m.err
}

func (m *recordingMessenger) last(t *testing.T) Prompt {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no prompt sent")
	}
	return m.sent[len(m.sent)-1].prompt
}

type fakeSubmitter struct {
	mu      sync.Mutex
	records []Record
	users   []int64
	fail    map[int64]error
	panics  bool
}

func (s *fakeSubmitter) Submit(ctx context.Context, userID int64, r Record) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("submit without deadline")
	}
	if s.panics {
		panic("gateway exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	s.users = append(s.users, userID)
	return s.fail[userID]
}

func (s *fakeSubmitter) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type fakePending struct {
	values map[int64]string
	err    error
}

func (p *fakePending) Pop(_ context.Context, userID int64) (string, bool, error) {
	if p.err != nil {
		return "", false, p.err
	}
	v, ok := p.values[userID]
	delete(p.values, userID)
	return v, ok, nil
}

type harness struct {
	dialogue  *Dialogue
	store     *MemoryStore
	messenger *recordingMessenger
	submitter *fakeSubmitter
	pending   *fakePending
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:     NewMemoryStore(time.Hour),
		messenger: &recordingMessenger{},
		submitter: &fakeSubmitter{fail: map[int64]error{}},
		pending:   &fakePending{values: map[int64]string{}},
	}
	h.dialogue = NewDialogue(h.store, h.messenger, h.submitter, h.pending, Options{
		Locations: testLocations,
		WebAppURL: "https://example.com/form",
		MenuURL:   "https://example.com/menu",
	}, zaptest.NewLogger(t))
	return h
}

func (h *harness) handle(t *testing.T, events ...Event) {
	t.Helper()
	for _, ev := range events {
		if ev.UserID == 0 {
			ev.UserID = testUser
		}
		if ev.ChatID == 0 {
			ev.ChatID = testChat
		}
		if err := h.dialogue.Handle(context.Background(), ev); err != nil {
			t.Fatalf("Handle(%s): %v", ev.Kind, err)
		}
	}
}

func (h *harness) session(t *testing.T, userID int64) Session {
	t.Helper()
	s, err := h.store.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("Get(%d): %v", userID, err)
	}
	return s
}

func text(s string) Event { return Event{Kind: EventText, Text: s} }

func toGuestCount() []Event {
	return []Event{
		{Kind: EventBeginBooking},
		{Kind: EventLocationChosen, Text: "вул. Антоновича, 157"},
	}
}

func toName() []Event { return append(toGuestCount(), text("4")) }

func toPhoneMethod() []Event { return append(toName(), text("Олена")) }

func toPhoneValue() []Event {
	return append(toPhoneMethod(), Event{Kind: EventPhoneMethodChosen, Method: PhoneMethodManual})
}

func toDateTime() []Event { return append(toPhoneValue(), text("+380 (50) 123-45-67")) }

func TestDialogueHappyPath(t *testing.T) {
	h := newHarness(t)
	h.handle(t, toDateTime()...)

	if s := h.session(t, testUser); s.State != StateAwaitingDateTime {
		t.Fatalf("state = %s, want %s", s.State, StateAwaitingDateTime)
	}
	h.handle(t, text("25.12.2025 19:00"))

	if h.submitter.calls() != 1 {
		t.Fatalf("submitter calls = %d, want 1", h.submitter.calls())
	}
	want := Record{
		Establishment: "вул. Антоновича, 157",
		DateTime:      "25.12.2025 19:00",
		Guests:        4,
		Name:          "Олена",
		Phone:         "+380501234567",
	}
	if got := h.submitter.records[0]; got != want {
		t.Errorf("record = %+v, want %+v", got, want)
	}
	if h.submitter.users[0] != testUser {
		t.Errorf("submitted for user %d", h.submitter.users[0])
	}

	s := h.session(t, testUser)
	if s.State != StateIdle || s.Fields != (Fields{}) {
		t.Errorf("session after success = %+v, want idle with empty fields", s)
	}
	if got := h.messenger.last(t).Text; got != thanksPrompt().Text {
		t.Errorf("last prompt = %q", got)
	}
}

func TestDialogueInvalidInputKeepsSession(t *testing.T) {
	tests := []struct {
		name  string
		setup []Event
		input Event
	}{
		{"unknown location", toGuestCount()[:1], text("Хрещатик, 1")},
		{"location wrong case", toGuestCount()[:1], Event{Kind: EventLocationChosen, Text: "ПР-Т. ТИЧИНИ, 8"}},
		{"zero guests", toGuestCount(), text("0")},
		{"negative guests", toGuestCount(), text("-3")},
		{"letters as guests", toGuestCount(), text("abc")},
		{"empty guests", toGuestCount(), text("")},
		{"contact in guest state", toGuestCount(), Event{Kind: EventContactShared, Phone: "380501234567"}},
		{"blank name", toName(), text("   ")},
		{"text instead of method", toPhoneMethod(), text("hello")},
		{"bad method", toPhoneMethod(), Event{Kind: EventPhoneMethodChosen, Method: "pigeon"}},
		{"short phone", toPhoneValue(), text("050 123 4567")},
		{"foreign phone", toPhoneValue(), text("+1 202 555 0143")},
		{"blank datetime", toDateTime(), text("  ")},
		{"malformed payload", toDateTime(), Event{Kind: EventFormSubmitted, Payload: []byte(`{oops`)}},
		{"incomplete payload", toDateTime(), Event{Kind: EventFormSubmitted, Payload: []byte(`{"place":"x"}`)}},
		{"nothing pending", toDateTime(), Event{Kind: EventDatePicked}},
		{"edit unknown field", toDateTime(), Event{Kind: EventEdit, Field: "age"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.handle(t, tt.setup...)
			before := h.session(t, testUser)

			h.handle(t, tt.input)

			after := h.session(t, testUser)
			if after.State != before.State {
				t.Errorf("state = %s, want %s", after.State, before.State)
			}
			if after.Fields != before.Fields {
				t.Errorf("fields = %+v, want %+v", after.Fields, before.Fields)
			}
			if h.submitter.calls() != 0 {
				t.Error("submitter called on invalid input")
			}
		})
	}
}

func TestDialogueRejectionMessage(t *testing.T) {
	h := newHarness(t)
	h.handle(t, toGuestCount()...)
	h.handle(t, text("abc"))

	p := h.messenger.last(t)
	if !strings.Contains(p.Text, "кількість гостей") {
		t.Errorf("prompt = %q", p.Text)
	}
	if len(p.Choices) == 0 || p.Choices[0][0].Action != ActionCancel {
		t.Errorf("rejection prompt should keep the cancel choice, got %+v", p.Choices)
	}
}

func TestDialogueCancelClearsFields(t *testing.T) {
	for name, setup := range map[string][]Event{
		"guest count": toGuestCount(),
		"name":        toName(),
		"phone value": toPhoneValue(),
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.handle(t, setup...)
			h.handle(t, Event{Kind: EventCancel})

			s := h.session(t, testUser)
			if s.State != StateIdle || s.Fields != (Fields{}) {
				t.Fatalf("after cancel = %+v", s)
			}
			if got := h.messenger.last(t).Text; got != cancelledPrompt().Text {
				t.Errorf("prompt = %q", got)
			}

			h.handle(t, Event{Kind: EventBeginBooking})
			s = h.session(t, testUser)
			if s.State != StateAwaitingLocation || s.Fields != (Fields{}) {
				t.Errorf("new attempt = %+v, want clean awaiting_location", s)
			}
		})
	}
}

func TestDialogueCancelRefusedWhileSubmitting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s, _ := h.store.CreateOrReset(ctx, testUser, testChat)
	s.State = StateSubmitting
	s.Fields = Fields{Establishment: "a", Guests: 1, Name: "n", Phone: "+380501234567", DateTime: "d"}
	if err := h.store.Save(ctx, s); err != nil {
		t.Fatal(err)
	}

	h.handle(t, Event{Kind: EventCancel})

	got := h.session(t, testUser)
	if got.State != StateSubmitting || got.Fields != s.Fields {
		t.Errorf("cancel changed an in-flight submission: %+v", got)
	}
	if h.messenger.last(t).Text != busyPrompt().Text {
		t.Errorf("prompt = %q", h.messenger.last(t).Text)
	}
}

func TestDialogueSubmitFailureIsRetryable(t *testing.T) {
	h := newHarness(t)
	h.submitter.fail[testUser] = errors.New("staff chat unreachable")

	h.handle(t, toDateTime()...)
	h.handle(t, text("25.12.2025 19:00"))

	s := h.session(t, testUser)
	if s.State != StateAwaitingDateTime {
		t.Fatalf("state = %s, want %s", s.State, StateAwaitingDateTime)
	}
	if s.Fields.DateTime != "" || s.Fields.Name != "Олена" || s.Fields.Phone != "+380501234567" {
		t.Errorf("fields after failure = %+v", s.Fields)
	}
	if s.Attempts != 1 {
		t.Errorf("attempts = %d", s.Attempts)
	}
	if !strings.HasPrefix(h.messenger.last(t).Text, submitFailedPrompt(false).Text) {
		t.Errorf("prompt = %q", h.messenger.last(t).Text)
	}

	delete(h.submitter.fail, testUser)
	h.handle(t, text("26.12.2025 20:00"))
	if h.submitter.calls() != 2 {
		t.Fatalf("submitter calls = %d, want 2", h.submitter.calls())
	}
	if got := h.session(t, testUser); got.State != StateIdle || got.Attempts != 0 {
		t.Errorf("session after retry = %+v", got)
	}
}

func TestDialogueSubmitFailureResetsAfterMaxAttempts(t *testing.T) {
	h := newHarness(t)
	h.submitter.fail[testUser] = errors.New("down")

	h.handle(t, toDateTime()...)
	for i := 0; i < defaultSubmitAttempts; i++ {
		h.handle(t, text("25.12.2025 19:00"))
	}

	s := h.session(t, testUser)
	if s.State != StateIdle || s.Fields != (Fields{}) {
		t.Errorf("session after %d failures = %+v", defaultSubmitAttempts, s)
	}
	if got := h.messenger.last(t).Text; got != submitFailedPrompt(true).Text {
		t.Errorf("prompt = %q", got)
	}
}

func TestDialogueSubmitFailureIsolatesUsers(t *testing.T) {
	h := newHarness(t)
	h.submitter.fail[testUser] = errors.New("boom")
	other := int64(2)

	h.handle(t, toDateTime()...)
	for _, ev := range toName() {
		ev.UserID, ev.ChatID = other, 200
		h.handle(t, ev)
	}

	h.handle(t, text("25.12.2025 19:00"))

	if s := h.session(t, other); s.State != StateAwaitingName || s.Fields.Guests != 4 {
		t.Errorf("other user's session touched: %+v", s)
	}
	for _, ev := range []Event{text("Ivan"), {Kind: EventContactShared, Phone: "380671112233"}, text("1.1.2026 18:00")} {
		ev.UserID, ev.ChatID = other, 200
		h.handle(t, ev)
	}
	if s := h.session(t, other); s.State != StateIdle {
		t.Errorf("other user did not complete: %+v", s)
	}
	if h.submitter.users[len(h.submitter.users)-1] != other {
		t.Error("other user's booking not submitted")
	}
}

func TestDialogueSubmitterPanicIsContained(t *testing.T) {
	h := newHarness(t)
	h.submitter.panics = true

	h.handle(t, toDateTime()...)
	h.handle(t, text("25.12.2025 19:00"))

	if s := h.session(t, testUser); s.State != StateAwaitingDateTime {
		t.Errorf("state after panic = %s", s.State)
	}
}

func TestDialogueFullFormThenContact(t *testing.T) {
	h := newHarness(t)
	h.handle(t, Event{
		Kind:    EventFormSubmitted,
		Payload: []byte(`{"place":"пр-т. Тичини, 8","datetime":"5.3.2026 19:30","name":"Ivan","guests":"2"}`),
	})

	s := h.session(t, testUser)
	if s.State != StateReviewingForm {
		t.Fatalf("state = %s, want %s", s.State, StateReviewingForm)
	}

	h.handle(t, Event{Kind: EventConfirm})
	if s := h.session(t, testUser); s.State != StateAwaitingPhoneMethod {
		t.Fatalf("state after confirm = %s, want %s", s.State, StateAwaitingPhoneMethod)
	}

	h.handle(t,
		Event{Kind: EventPhoneMethodChosen, Method: PhoneMethodContact},
		Event{Kind: EventContactShared, Phone: "+48 601 234 567"},
	)

	if h.submitter.calls() != 1 {
		t.Fatalf("submitter calls = %d", h.submitter.calls())
	}
	want := Record{Establishment: "пр-т. Тичини, 8", DateTime: "05.03.2026 19:30", Guests: 2, Name: "Ivan", Phone: "+48601234567"}
	if got := h.submitter.records[0]; got != want {
		t.Errorf("record = %+v, want %+v", got, want)
	}
}

func TestDialogueFullFormUnknownPlace(t *testing.T) {
	h := newHarness(t)
	h.handle(t, Event{Kind: EventBeginBooking})
	h.handle(t, Event{
		Kind:    EventFormSubmitted,
		Payload: []byte(`{"place":"Хрещатик, 1","datetime":"5.3.2026 19:30","name":"Ivan","guests":2}`),
	})
	s := h.session(t, testUser)
	if s.State != StateAwaitingLocation || s.Fields != (Fields{}) {
		t.Errorf("session = %+v", s)
	}
}

func TestDialogueDatePickedFromPending(t *testing.T) {
	h := newHarness(t)
	h.handle(t, toDateTime()...)
	h.pending.values[testUser] = "7.3.2026 21:00"

	h.handle(t, Event{Kind: EventDatePicked})

	if h.submitter.calls() != 1 {
		t.Fatalf("submitter calls = %d", h.submitter.calls())
	}
	if got := h.submitter.records[0].DateTime; got != "07.03.2026 21:00" {
		t.Errorf("datetime = %q", got)
	}
}

func TestDialoguePendingErrorRePrompts(t *testing.T) {
	h := newHarness(t)
	h.handle(t, toDateTime()...)
	h.pending.err = errors.New("relay down")

	h.handle(t, Event{Kind: EventDatePicked})

	if s := h.session(t, testUser); s.State != StateAwaitingDateTime {
		t.Errorf("state = %s", s.State)
	}
	if h.submitter.calls() != 0 {
		t.Error("submitted without a datetime")
	}
}

func TestDialogueStructuredDateTime(t *testing.T) {
	h := newHarness(t)
	h.handle(t, toDateTime()...)
	h.handle(t, Event{Kind: EventFormSubmitted, Payload: []byte(`{"datetime":"9.3.2026 8:15"}`)})

	if got := h.submitter.records[0].DateTime; got != "09.03.2026 08:15" {
		t.Errorf("datetime = %q", got)
	}
}

func TestDialogueEditField(t *testing.T) {
	h := newHarness(t)
	h.handle(t, toDateTime()...)
	h.handle(t, Event{Kind: EventEdit, Field: FieldName})

	s := h.session(t, testUser)
	if s.State != StateAwaitingName || s.Fields.Name != "" {
		t.Fatalf("after edit = %+v", s)
	}
	if s.Fields.Phone == "" || s.Fields.Guests != 4 {
		t.Errorf("edit cleared other fields: %+v", s.Fields)
	}

	h.handle(t, text("Марія"))
	if s := h.session(t, testUser); s.State != StateAwaitingDateTime || s.Fields.Name != "Марія" {
		t.Errorf("after new name = %+v", s)
	}

	h.handle(t, Event{Kind: EventEdit, Field: FieldPhone})
	s = h.session(t, testUser)
	if s.State != StateAwaitingPhoneMethod || s.Fields.PhoneMethod != PhoneMethodUnset {
		t.Errorf("after phone edit = %+v", s)
	}
}

func TestDialogueStartAndMenu(t *testing.T) {
	h := newHarness(t)
	h.handle(t, toName()...)
	h.handle(t, Event{Kind: EventViewMenu})

	if s := h.session(t, testUser); s.State != StateAwaitingName {
		t.Errorf("menu changed state to %s", s.State)
	}
	if !strings.Contains(h.messenger.last(t).Text, "https://example.com/menu") {
		t.Errorf("menu prompt = %q", h.messenger.last(t).Text)
	}

	h.handle(t, Event{Kind: EventStart})
	if s := h.session(t, testUser); s.State != StateIdle || s.Fields != (Fields{}) {
		t.Errorf("after start = %+v", s)
	}
}

func TestDialogueSendFailureStillAdvances(t *testing.T) {
	h := newHarness(t)
	h.messenger.err = errors.New("chat blocked")
	h.handle(t, toName()...)

	if s := h.session(t, testUser); s.State != StateAwaitingName {
		t.Errorf("state = %s, want %s", s.State, StateAwaitingName)
	}
}

func TestDialogueDatePickerURL(t *testing.T) {
	h := newHarness(t)
	h.handle(t, toDateTime()...)

	p := h.messenger.last(t)
	var url string
	for _, r := range p.Choices {
		for _, c := range r {
			if c.Action == ActionOpenDatePicker {
				url = c.Value
			}
		}
	}
	for _, want := range []string{"https://example.com/form?", "chat_id=100", "guests=4", "phone=%2B380501234567"} {
		if !strings.Contains(url, want) {
			t.Errorf("web app url %q missing %q", url, want)
		}
	}
}

const fullForm = `{"place":"пр-т. Тичини, 8","datetime":"5.3.2026 19:30","name":"Ivan","guests":2}`

func TestDialogueFormReview(t *testing.T) {
	h := newHarness(t)
	h.handle(t, Event{Kind: EventBeginBooking}, Event{Kind: EventFormSubmitted, Payload: []byte(fullForm)})

	p := h.messenger.last(t)
	if !strings.HasPrefix(p.Text, "Перевірте ваші дані") || !strings.Contains(p.Text, "Ivan") {
		t.Errorf("review prompt = %q", p.Text)
	}
	var editURL string
	var confirm bool
	for _, r := range p.Choices {
		for _, c := range r {
			switch c.Action {
			case ActionEditForm:
				editURL = c.Value
			case ActionConfirm:
				confirm = true
			}
		}
	}
	if !confirm {
		t.Error("review prompt without a confirm choice")
	}
	for _, want := range []string{"https://example.com/form?", "guests=2", "name=Ivan", "datetime=05.03.2026+19%3A30"} {
		if !strings.Contains(editURL, want) {
			t.Errorf("edit url %q missing %q", editURL, want)
		}
	}

	h.handle(t, text("все ок"))
	if s := h.session(t, testUser); s.State != StateReviewingForm {
		t.Fatalf("text during review moved to %s", s.State)
	}

	h.handle(t, Event{Kind: EventFormSubmitted, Payload: []byte(strings.Replace(fullForm, `"guests":2`, `"guests":5`, 1))})
	s := h.session(t, testUser)
	if s.State != StateReviewingForm || s.Fields.Guests != 5 {
		t.Fatalf("after re-submitted form = %+v", s)
	}
	if h.submitter.calls() != 0 {
		t.Error("submitted before the guest confirmed")
	}

	h.handle(t, Event{Kind: EventCancel})
	if s := h.session(t, testUser); s.State != StateIdle || s.Fields != (Fields{}) {
		t.Errorf("after cancel = %+v", s)
	}
}

func TestDialogueFormKeepsTypedFields(t *testing.T) {
	h := newHarness(t)
	h.handle(t, toDateTime()...)
	h.handle(t, Event{Kind: EventEdit, Field: FieldLocation})
	before := h.session(t, testUser)

	h.handle(t, Event{
		Kind:    EventFormSubmitted,
		Payload: []byte(`{"place":"пр-т. Тичини, 8","datetime":"5.3.2026 19:30","name":"Інше","guests":9}`),
	})

	after := h.session(t, testUser)
	if after.State != StateAwaitingLocation || after.Fields != before.Fields {
		t.Errorf("form overwrote typed fields: %+v, want %+v", after, before)
	}
	if after.Fields.Guests != 4 || after.Fields.Name != "Олена" {
		t.Errorf("fields = %+v", after.Fields)
	}
	if h.submitter.calls() != 0 {
		t.Error("form submitted the booking")
	}

	h.handle(t, Event{Kind: EventLocationChosen, Text: "пр-т. Тичини, 8"})
	if s := h.session(t, testUser); s.State != StateAwaitingDateTime || s.Fields.Establishment != "пр-т. Тичини, 8" {
		t.Errorf("after new location = %+v", s)
	}
}

type fakeHistory struct {
	records map[int64][]Record
	err     error
}

func (f *fakeHistory) UserBookings(_ context.Context, userID int64) ([]Record, error) {
	return f.records[userID], f.err
}

func TestDialogueMyBookings(t *testing.T) {
	h := newHarness(t)
	history := &fakeHistory{records: map[int64][]Record{
		testUser: {
			{Establishment: "вул. Антоновича, 157", DateTime: "01.01.2026 19:00", Guests: 2, Name: "Олена"},
			{Establishment: "пр-т. Тичини, 8", DateTime: "02.02.2026 20:00", Guests: 6, Name: "Олена"},
		},
	}}
	h.dialogue.WithHistory(history)

	h.handle(t, Event{Kind: EventStart})
	var offered bool
	for _, r := range h.messenger.last(t).Choices {
		for _, c := range r {
			offered = offered || c.Action == ActionMyBookings
		}
	}
	if !offered {
		t.Error("welcome prompt does not offer the bookings list")
	}

	h.handle(t, toName()...)
	h.handle(t, Event{Kind: EventMyBookings})
	got := h.messenger.last(t).Text
	newer, older := strings.Index(got, "02.02.2026"), strings.Index(got, "01.01.2026")
	if newer < 0 || older < 0 || newer > older {
		t.Errorf("bookings prompt = %q, want newest first", got)
	}
	if s := h.session(t, testUser); s.State != StateAwaitingName {
		t.Errorf("listing bookings changed state to %s", s.State)
	}

	h.handle(t, Event{Kind: EventMyBookings, UserID: 3, ChatID: 300})
	if got := h.messenger.last(t).Text; got != bookingsPrompt(nil).Text {
		t.Errorf("empty history prompt = %q", got)
	}

	history.err = errors.New("journal unreadable")
	h.handle(t, Event{Kind: EventMyBookings})
	if got := h.messenger.last(t).Text; got != historyUnavailablePrompt().Text {
		t.Errorf("prompt on history error = %q", got)
	}
}

func TestDialogueMyBookingsWithoutHistory(t *testing.T) {
	h := newHarness(t)
	h.handle(t, Event{Kind: EventMyBookings})
	if got := h.messenger.last(t).Text; got != historyUnavailablePrompt().Text {
		t.Errorf("prompt = %q", got)
	}
}
