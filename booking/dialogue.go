package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Messenger delivers prompts to a chat. Sends are best effort: the dialogue
// logs a failed send and keeps the state it already reached.
type Messenger interface {
	Send(ctx context.Context, chatID int64, p Prompt) error
}

// Submitter delivers a completed booking. One call is one delivery attempt.
type Submitter interface {
	Submit(ctx context.Context, userID int64, r Record) error
}

// PendingSource hands out the datetime a guest picked in the web form.
// found is false when nothing is waiting; that is not an error.
type PendingSource interface {
	Pop(ctx context.Context, userID int64) (value string, found bool, err error)
}

// History lists the bookings already delivered for a user, oldest first.
type History interface {
	UserBookings(ctx context.Context, userID int64) ([]Record, error)
}

// Options tune the dialogue.
type Options struct {
	Locations         Locations
	Phone             PhoneRule
	WebAppURL         string
	MenuURL           string
	MaxSubmitAttempts int
	SubmitTimeout     time.Duration
}

const (
	defaultSubmitAttempts = 3
	defaultSubmitTimeout  = 10 * time.Second
)

// transition applies an event to a copy of the session. It may pin the next
// state; when it leaves State empty the first missing field decides.
type transition func(ctx context.Context, s *Session, ev Event) error

// Dialogue drives booking sessions. It is safe for concurrent use by
// different users; events of one user must be handled one at a time.
type Dialogue struct {
	store     Store
	messenger Messenger
	submitter Submitter
	pending   PendingSource
	history   History
	opts      Options
	log       *zap.Logger

	transitions map[State]map[EventKind]transition
}

// NewDialogue wires the state machine. pending may be nil, in which case the
// "date picked" button is answered with an error prompt.
func NewDialogue(store Store, messenger Messenger, submitter Submitter, pending PendingSource, opts Options, log *zap.Logger) *Dialogue {
	if opts.Phone.Digits == 0 {
		opts.Phone = DefaultPhoneRule
	}
	if opts.MaxSubmitAttempts <= 0 {
		opts.MaxSubmitAttempts = defaultSubmitAttempts
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = defaultSubmitTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	d := &Dialogue{
		store:     store,
		messenger: messenger,
		submitter: submitter,
		pending:   pending,
		opts:      opts,
		log:       log,
	}
	d.transitions = map[State]map[EventKind]transition{
		StateIdle: {
			EventFormSubmitted: d.applyForm,
		},
		StateAwaitingLocation: {
			EventLocationChosen: d.applyLocation,
			EventText:           d.applyLocation,
			EventFormSubmitted:  d.applyForm,
		},
		StateAwaitingGuestCount: {
			EventText: d.applyGuests,
		},
		StateAwaitingName: {
			EventText: d.applyName,
		},
		StateAwaitingPhoneMethod: {
			EventPhoneMethodChosen: d.applyPhoneMethod,
			EventText:              rejectPhoneMethod,
			EventContactShared:     d.applyContact,
		},
		StateAwaitingPhoneValue: {
			EventText:          d.applyPhone,
			EventContactShared: d.applyContact,
		},
		StateAwaitingDateTime: {
			EventText:          d.applyDateTime,
			EventFormSubmitted: d.applyDateTimePayload,
			EventDatePicked:    d.applyPendingDateTime,
		},
		StateReviewingForm: {
			EventConfirm:       confirmForm,
			EventFormSubmitted: d.fillForm,
			EventText:          rejectUnconfirmed,
		},
	}
	return d
}

// WithHistory enables the "my bookings" view.
func (d *Dialogue) WithHistory(h History) *Dialogue {
	d.history = h
	return d
}

// Handle processes one event. Validation failures are answered with a prompt
// and never returned; an error means the session store failed.
func (d *Dialogue) Handle(ctx context.Context, ev Event) error {
	log := d.log.With(zap.Int64("user_id", ev.UserID), zap.Stringer("event", ev.Kind))

	switch ev.Kind {
	case EventStart:
		if _, err := d.store.CreateOrReset(ctx, ev.UserID, ev.ChatID); err != nil {
			return fmt.Errorf("reset session: %w", err)
		}
		d.send(ctx, log, ev.ChatID, d.welcomePrompt())
		return nil
	case EventViewMenu:
		d.send(ctx, log, ev.ChatID, menuPrompt(d.opts.MenuURL))
		return nil
	case EventMyBookings:
		d.myBookings(ctx, log, ev)
		return nil
	}

	s, err := d.load(ctx, ev)
	if err != nil {
		return err
	}
	log = log.With(zap.String("state", string(s.State)))

	if s.State == StateSubmitting {
		log.Info("event ignored while submitting")
		d.send(ctx, log, s.ChatID, busyPrompt())
		return nil
	}

	switch ev.Kind {
	case EventBeginBooking:
		return d.begin(ctx, log, ev)
	case EventCancel:
		return d.cancel(ctx, log, s)
	case EventEdit:
		return d.edit(ctx, log, s, ev)
	}

	tr, ok := d.transitions[s.State][ev.Kind]
	if !ok {
		log.Debug("event not expected in state", zap.String("input", ev.Input()))
		d.send(ctx, log, s.ChatID, d.promptFor(s))
		return nil
	}

	next := s
	next.State = ""
	if err := tr(ctx, &next, ev); err != nil {
		var ie *InputError
		if !errors.As(err, &ie) {
			return err
		}
		log.Info("booking input rejected",
			zap.String("code", ie.Code),
			zap.String("input", ev.Input()),
		)
		p := d.promptFor(s)
		p.Text = ie.Message
		d.send(ctx, log, s.ChatID, p)
		return nil
	}
	return d.advance(ctx, log, next)
}

func (d *Dialogue) load(ctx context.Context, ev Event) (Session, error) {
	s, err := d.store.Get(ctx, ev.UserID)
	if errors.Is(err, ErrSessionNotFound) {
		return NewSession(ev.UserID, ev.ChatID, time.Now()), nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	if ev.ChatID != 0 {
		s.ChatID = ev.ChatID
	}
	return s, nil
}

func (d *Dialogue) begin(ctx context.Context, log *zap.Logger, ev Event) error {
	s, err := d.store.CreateOrReset(ctx, ev.UserID, ev.ChatID)
	if err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	s.State = StateAwaitingLocation
	if err := d.store.Save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	d.send(ctx, log, s.ChatID, d.promptFor(s))
	return nil
}

func (d *Dialogue) cancel(ctx context.Context, log *zap.Logger, s Session) error {
	if !s.State.Cancellable() {
		d.send(ctx, log, s.ChatID, d.welcomePrompt())
		return nil
	}
	if _, err := d.store.CreateOrReset(ctx, s.UserID, s.ChatID); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	log.Info("booking cancelled")
	d.send(ctx, log, s.ChatID, cancelledPrompt())
	return nil
}

func (d *Dialogue) edit(ctx context.Context, log *zap.Logger, s Session, ev Event) error {
	state, ok := collectionState[ev.Field]
	if !ok || !s.State.Collecting() {
		d.send(ctx, log, s.ChatID, d.promptFor(s))
		return nil
	}
	s.Fields.clear(ev.Field)
	s.State = state
	if err := d.store.Save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	d.send(ctx, log, s.ChatID, d.promptFor(s))
	return nil
}

// advance keeps a state pinned by the transition, otherwise moves the session
// to the first missing field, or submits it.
func (d *Dialogue) advance(ctx context.Context, log *zap.Logger, s Session) error {
	if s.State == "" {
		s.State = nextState(s.Fields)
	}
	if s.State == StateSubmitting {
		return d.submit(ctx, log, s)
	}
	if err := d.store.Save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	d.send(ctx, log, s.ChatID, d.promptFor(s))
	return nil
}

func (d *Dialogue) submit(ctx context.Context, log *zap.Logger, s Session) error {
	rec, ok := s.Fields.Record()
	if !ok {
		return fmt.Errorf("submit session of user %d: booking incomplete", s.UserID)
	}
	if err := d.store.Save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	if err := d.deliver(ctx, s.UserID, rec); err != nil {
		s.Attempts++
		log.Error("booking submission failed",
			zap.Error(err),
			zap.Int("attempt", s.Attempts),
			zap.String("establishment", rec.Establishment),
			zap.String("datetime", rec.DateTime),
		)
		if s.Attempts >= d.opts.MaxSubmitAttempts {
			if _, err := d.store.CreateOrReset(ctx, s.UserID, s.ChatID); err != nil {
				return fmt.Errorf("reset session: %w", err)
			}
			d.send(ctx, log, s.ChatID, submitFailedPrompt(true))
			return nil
		}

		s.Fields.clear(FieldDateTime)
		s.State = StateAwaitingDateTime
		if err := d.store.Save(ctx, s); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		p := d.promptFor(s)
		p.Text = submitFailedPrompt(false).Text + "\n" + p.Text
		d.send(ctx, log, s.ChatID, p)
		return nil
	}

	log.Info("booking submitted",
		zap.String("establishment", rec.Establishment),
		zap.String("datetime", rec.DateTime),
		zap.Int("guests", rec.Guests),
	)
	if _, err := d.store.CreateOrReset(ctx, s.UserID, s.ChatID); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	d.send(ctx, log, s.ChatID, thanksPrompt())
	return nil
}

// deliver calls the submitter once under a timeout and turns a panic into an
// error so a broken gateway cannot take down the event loop.
func (d *Dialogue) deliver(ctx context.Context, userID int64, rec Record) (err error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.SubmitTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("submitter panic: %v", r)
		}
	}()
	return d.submitter.Submit(ctx, userID, rec)
}

func (d *Dialogue) myBookings(ctx context.Context, log *zap.Logger, ev Event) {
	if d.history == nil {
		d.send(ctx, log, ev.ChatID, historyUnavailablePrompt())
		return
	}
	recs, err := d.history.UserBookings(ctx, ev.UserID)
	if err != nil {
		log.Error("failed to read booking history", zap.Error(err))
		d.send(ctx, log, ev.ChatID, historyUnavailablePrompt())
		return
	}
	d.send(ctx, log, ev.ChatID, bookingsPrompt(recs))
}

func (d *Dialogue) send(ctx context.Context, log *zap.Logger, chatID int64, p Prompt) {
	if err := d.messenger.Send(ctx, chatID, p); err != nil {
		log.Warn("failed to send prompt", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (d *Dialogue) applyLocation(_ context.Context, s *Session, ev Event) error {
	if err := d.opts.Locations.validate(ev.Text); err != nil {
		return err
	}
	s.Fields.Establishment = ev.Text
	return nil
}

// applyForm takes a full web form at the start of a booking. Fields typed in
// already are never overwritten; the guest edits them one by one instead.
func (d *Dialogue) applyForm(ctx context.Context, s *Session, ev Event) error {
	if f := s.Fields; f.Guests > 0 || f.Name != "" || f.DateTime != "" {
		return newInputError("form_conflict", "Частину даних уже введено, тому форму не прийнято. Оберіть локацію зі списку:")
	}
	return d.fillForm(ctx, s, ev)
}

// fillForm stores the form values and asks the guest to review them.
func (d *Dialogue) fillForm(_ context.Context, s *Session, ev Event) error {
	form, err := ParseForm(ev.Payload)
	if err != nil {
		return err
	}
	if err := d.opts.Locations.validate(form.Place); err != nil {
		return err
	}
	s.Fields.Establishment = form.Place
	s.Fields.DateTime = form.DateTime
	s.Fields.Guests = form.Guests
	s.Fields.Name = form.Name
	s.State = StateReviewingForm
	return nil
}

func confirmForm(context.Context, *Session, Event) error {
	return nil
}

func rejectUnconfirmed(context.Context, *Session, Event) error {
	return newInputError("confirm_required", "Натисніть «Далі», щоб продовжити, або «Редагувати», щоб змінити дані.")
}

func (d *Dialogue) applyGuests(_ context.Context, s *Session, ev Event) error {
	n, err := ParseGuests(ev.Text)
	if err != nil {
		return err
	}
	s.Fields.Guests = n
	return nil
}

func (d *Dialogue) applyName(_ context.Context, s *Session, ev Event) error {
	name, err := ParseName(ev.Text)
	if err != nil {
		return err
	}
	s.Fields.Name = name
	return nil
}

func (d *Dialogue) applyPhoneMethod(_ context.Context, s *Session, ev Event) error {
	switch ev.Method {
	case PhoneMethodManual, PhoneMethodContact:
		s.Fields.PhoneMethod = ev.Method
		return nil
	}
	return errPhoneMethod()
}

func rejectPhoneMethod(context.Context, *Session, Event) error {
	return errPhoneMethod()
}

func errPhoneMethod() error {
	return newInputError("invalid_phone_method", "Оберіть спосіб: ввести номер вручну або поділитися контактом.")
}

func (d *Dialogue) applyPhone(_ context.Context, s *Session, ev Event) error {
	phone, err := d.opts.Phone.NormalizePhone(ev.Text)
	if err != nil {
		return err
	}
	s.Fields.Phone = phone
	if s.Fields.PhoneMethod == PhoneMethodUnset {
		s.Fields.PhoneMethod = PhoneMethodManual
	}
	return nil
}

func (d *Dialogue) applyContact(_ context.Context, s *Session, ev Event) error {
	phone, err := NormalizeContactPhone(ev.Phone)
	if err != nil {
		return err
	}
	s.Fields.Phone = phone
	s.Fields.PhoneMethod = PhoneMethodContact
	return nil
}

func (d *Dialogue) applyDateTime(_ context.Context, s *Session, ev Event) error {
	dt, err := NormalizeDateTime(ev.Text)
	if err != nil {
		return err
	}
	s.Fields.DateTime = dt
	return nil
}

func (d *Dialogue) applyDateTimePayload(_ context.Context, s *Session, ev Event) error {
	dt, err := ParseDateTimePayload(ev.Payload)
	if err != nil {
		return err
	}
	s.Fields.DateTime = dt
	return nil
}

func (d *Dialogue) applyPendingDateTime(ctx context.Context, s *Session, _ Event) error {
	if d.pending == nil {
		return newInputError("pending_unavailable", "Введіть дату у форматі ДД.ММ.РРРР ГГ:ХХ.")
	}
	value, found, err := d.pending.Pop(ctx, s.UserID)
	if err != nil {
		d.log.Warn("pending booking lookup failed", zap.Int64("user_id", s.UserID), zap.Error(err))
		return newInputError("pending_unavailable", "Не вдалося отримати дату. Спробуйте ще раз.")
	}
	if !found {
		return newInputError("pending_missing", "Дату ще не отримано. Оберіть дату у формі та спробуйте ще раз.")
	}
	dt, err := NormalizeDateTime(value)
	if err != nil {
		return err
	}
	s.Fields.DateTime = dt
	return nil
}
