package booking

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Action is the meaning of a choice offered to the guest. The transport
// decides how each action is labelled and maps the labels back to events.
type Action int

const (
	ActionBegin Action = iota + 1
	ActionMenu
	ActionCancel
	ActionRestart
	ActionLocation
	ActionPhoneManual
	ActionPhoneContact
	ActionSendContact
	ActionOpenDatePicker
	ActionDatePicked
	ActionConfirm
	ActionEditForm
	ActionMyBookings
)

// Choice is one keyboard option. Value carries the location name for
// ActionLocation and the form URL for ActionOpenDatePicker and ActionEditForm.
type Choice struct {
	Action Action
	Value  string
}

// Prompt is an outbound message. A prompt without choices removes any
// keyboard shown before.
type Prompt struct {
	Text    string
	HTML    bool
	Choices [][]Choice
}

func row(choices ...Choice) []Choice { return choices }

func (d *Dialogue) welcomePrompt() Prompt {
	p := Prompt{
		Text: "Вітаємо вас в Telegram-бот кальян-бар GUSTOÚ\nТут Ви можете:\nЗабронювати столик",
		Choices: [][]Choice{
			row(Choice{Action: ActionBegin}, Choice{Action: ActionMenu}),
		},
	}
	if d.history != nil {
		p.Choices = append(p.Choices, row(Choice{Action: ActionMyBookings}))
	}
	return p
}

func menuPrompt(menuURL string) Prompt {
	return Prompt{
		Text: "Перегляньте наше меню:\n" + menuURL,
		Choices: [][]Choice{
			row(Choice{Action: ActionBegin}, Choice{Action: ActionMenu}),
		},
	}
}

func cancelledPrompt() Prompt {
	return Prompt{
		Text:    "Бронювання скасовано.",
		Choices: [][]Choice{row(Choice{Action: ActionRestart})},
	}
}

func busyPrompt() Prompt {
	return Prompt{Text: "Бронювання вже надсилається, зачекайте."}
}

func thanksPrompt() Prompt {
	return Prompt{
		Text: "Дякуємо, що обрали нас! Наш адміністратор незабаром зв'яжеться з вами.\n" +
			"Тим часом ви можете переглянути наше меню або повернутися на головну сторінку.",
		Choices: [][]Choice{
			row(Choice{Action: ActionRestart}, Choice{Action: ActionMenu}),
		},
	}
}

func submitFailedPrompt(final bool) Prompt {
	if final {
		return Prompt{
			Text:    "Помилка при бронюванні. Почніть, будь ласка, спочатку.",
			Choices: [][]Choice{row(Choice{Action: ActionRestart})},
		}
	}
	return Prompt{Text: "Помилка при бронюванні. Спробуйте ще раз."}
}

// maxListedBookings caps the "my bookings" answer to the most recent ones.
const maxListedBookings = 5

func bookingsPrompt(recs []Record) Prompt {
	choices := [][]Choice{row(Choice{Action: ActionBegin}, Choice{Action: ActionMenu})}
	if len(recs) == 0 {
		return Prompt{Text: "У вас ще немає бронювань.", Choices: choices}
	}

	var b strings.Builder
	b.WriteString("Ваші бронювання:")
	for i := len(recs) - 1; i >= 0 && i >= len(recs)-maxListedBookings; i-- {
		r := recs[i]
		fmt.Fprintf(&b, "\n\n🏠 %s\n🕒 %s\n👥 %d\n📝 %s", r.Establishment, r.DateTime, r.Guests, r.Name)
	}
	return Prompt{Text: b.String(), Choices: choices}
}

func historyUnavailablePrompt() Prompt {
	return Prompt{Text: "Не вдалося завантажити ваші бронювання. Спробуйте пізніше."}
}

// promptFor renders the question asked in a collection state.
func (d *Dialogue) promptFor(s Session) Prompt {
	cancel := row(Choice{Action: ActionCancel})
	switch s.State {
	case StateAwaitingLocation:
		locs := make([]Choice, 0, len(d.opts.Locations))
		for _, name := range d.opts.Locations {
			locs = append(locs, Choice{Action: ActionLocation, Value: name})
		}
		return Prompt{Text: "Оберіть локацію:", Choices: [][]Choice{locs, cancel}}
	case StateAwaitingGuestCount:
		return Prompt{Text: "Кількість гостей:", Choices: [][]Choice{cancel}}
	case StateAwaitingName:
		return Prompt{Text: "Вкажіть Ваше ім'я:", Choices: [][]Choice{cancel}}
	case StateAwaitingPhoneMethod:
		return Prompt{
			Text: "Ваш контактний номер телефону:",
			Choices: [][]Choice{
				row(Choice{Action: ActionPhoneManual}, Choice{Action: ActionPhoneContact}),
				cancel,
			},
		}
	case StateAwaitingPhoneValue:
		if s.Fields.PhoneMethod == PhoneMethodContact {
			return Prompt{
				Text:    "Натисніть, щоб поділитись своїм контактом:",
				Choices: [][]Choice{row(Choice{Action: ActionSendContact}), cancel},
			}
		}
		return Prompt{
			Text:    fmt.Sprintf("Введіть номер телефону у форматі %s:", d.opts.Phone.Example()),
			Choices: [][]Choice{cancel},
		}
	case StateReviewingForm:
		f := s.Fields
		choices := [][]Choice{row(Choice{Action: ActionConfirm})}
		if d.opts.WebAppURL != "" {
			choices = append(choices, row(Choice{Action: ActionEditForm, Value: d.editFormURL(s)}))
		}
		choices = append(choices, cancel)
		return Prompt{
			Text: fmt.Sprintf("Перевірте ваші дані\n🏠 %s\n🕒 %s\n👥 %d\n📝 %s\n\nЯкщо все вірно, натисніть «Далі»",
				f.Establishment, f.DateTime, f.Guests, f.Name),
			Choices: choices,
		}
	case StateAwaitingDateTime:
		choices := [][]Choice{}
		if d.opts.WebAppURL != "" {
			choices = append(choices, row(
				Choice{Action: ActionOpenDatePicker, Value: d.webAppURL(s)},
				Choice{Action: ActionDatePicked},
			))
		}
		choices = append(choices, cancel)
		return Prompt{
			Text:    "Оберіть дату ⬇️ або введіть її у форматі ДД.ММ.РРРР ГГ:ХХ",
			Choices: choices,
		}
	}
	return d.welcomePrompt()
}

// webAppURL pre-fills the date picker form with what is known so far.
func (d *Dialogue) webAppURL(s Session) string {
	q := url.Values{}
	q.Set("establishment", s.Fields.Establishment)
	q.Set("guests", strconv.Itoa(s.Fields.Guests))
	q.Set("name", s.Fields.Name)
	q.Set("phone", s.Fields.Phone)
	q.Set("chat_id", strconv.FormatInt(s.ChatID, 10))
	return d.formURL(q)
}

// editFormURL reopens the full form with the values the guest sent, using
// the form's own field names.
func (d *Dialogue) editFormURL(s Session) string {
	q := url.Values{}
	q.Set("place", s.Fields.Establishment)
	q.Set("datetime", s.Fields.DateTime)
	q.Set("name", s.Fields.Name)
	q.Set("guests", strconv.Itoa(s.Fields.Guests))
	q.Set("chat_id", strconv.FormatInt(s.ChatID, 10))
	return d.formURL(q)
}

func (d *Dialogue) formURL(q url.Values) string {
	u, err := url.Parse(d.opts.WebAppURL)
	if err != nil {
		return d.opts.WebAppURL + "?" + q.Encode()
	}
	existing := u.Query()
	for k, vs := range q {
		existing[k] = vs
	}
	u.RawQuery = existing.Encode()
	return u.String()
}
