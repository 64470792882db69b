package telegram

import (
	"encoding/json"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tablebot/booking"
)

// Button labels shown to guests.
const (
	LabelBegin          = "Забронювати столик"
	LabelMenu           = "Переглянути меню"
	LabelCancel         = "Відміна"
	LabelRestart        = "Повернутись до початку"
	LabelPhoneManual    = "Ввести номер вручну"
	LabelPhoneContact   = "Поділитись контактом"
	LabelSendContact    = "📲 Надіслати контакт"
	LabelOpenDatePicker = "Обрати дату ⬇️"
	LabelDatePicked     = "Готово"
	LabelConfirm        = "Далі"
	LabelEditForm       = "Редагувати"
	LabelMyBookings     = "Мої бронювання"
)

var labelEvents = map[string]booking.Event{
	LabelBegin:        {Kind: booking.EventBeginBooking},
	LabelMenu:         {Kind: booking.EventViewMenu},
	LabelCancel:       {Kind: booking.EventCancel},
	LabelRestart:      {Kind: booking.EventStart},
	LabelPhoneManual:  {Kind: booking.EventPhoneMethodChosen, Method: booking.PhoneMethodManual},
	LabelPhoneContact: {Kind: booking.EventPhoneMethodChosen, Method: booking.PhoneMethodContact},
	LabelDatePicked:   {Kind: booking.EventDatePicked},
	LabelConfirm:      {Kind: booking.EventConfirm},
	LabelMyBookings:   {Kind: booking.EventMyBookings},
}

// canonicalLabel maps labels sent by older keyboards to the current ones.
func canonicalLabel(text string) string {
	switch text {
	case "🍽 Забронювати столик":
		return LabelBegin
	case "Скасувати":
		return LabelCancel
	case "⬅️ Назад":
		return LabelRestart
	}
	return text
}

var commandEvents = map[string]booking.EventKind{
	"start":  booking.EventStart,
	"book":   booking.EventBeginBooking,
	"menu":   booking.EventViewMenu,
	"cancel": booking.EventCancel,
	"my":     booking.EventMyBookings,
}

// WebAppData is the payload a web app button sends back to the bot.
type WebAppData struct {
	Data       string `json:"data"`
	ButtonText string `json:"button_text"`
}

// Update is a Telegram update together with the web app data the client
// library cannot decode.
type Update struct {
	tgbotapi.Update
	WebAppData *WebAppData
}

// DecodeUpdate parses one raw update from getUpdates or a webhook call.
func DecodeUpdate(raw []byte) (Update, error) {
	var u Update
	if err := json.Unmarshal(raw, &u.Update); err != nil {
		return Update{}, err
	}
	var extra struct {
		Message *struct {
			WebAppData *WebAppData `json:"web_app_data"`
		} `json:"message"`
	}
	if err := json.Unmarshal(raw, &extra); err != nil {
		return Update{}, err
	}
	if extra.Message != nil {
		u.WebAppData = extra.Message.WebAppData
	}
	return u, nil
}

// Adapter classifies updates into dialogue events.
type Adapter struct {
	locations booking.Locations
}

func NewAdapter(locations booking.Locations) *Adapter {
	return &Adapter{locations: locations}
}

// Event maps an update. ok is false for updates the dialogue has no use for.
func (a *Adapter) Event(u Update) (ev booking.Event, ok bool) {
	msg := u.Message
	if msg == nil || msg.Chat == nil {
		return booking.Event{}, false
	}
	userID := msg.Chat.ID
	if msg.From != nil {
		userID = msg.From.ID
	}

	ev = a.classify(u, msg)
	ev.UserID = userID
	ev.ChatID = msg.Chat.ID
	return ev, true
}

func (a *Adapter) classify(u Update, msg *tgbotapi.Message) booking.Event {
	if u.WebAppData != nil {
		return booking.Event{Kind: booking.EventFormSubmitted, Payload: []byte(u.WebAppData.Data)}
	}
	if msg.Contact != nil {
		return booking.Event{Kind: booking.EventContactShared, Phone: msg.Contact.PhoneNumber}
	}
	if msg.IsCommand() {
		cmd := msg.Command()
		if kind, ok := commandEvents[cmd]; ok {
			return booking.Event{Kind: kind}
		}
		if name, ok := strings.CutPrefix(cmd, "edit_"); ok {
			if field, ok := booking.ParseField(name); ok {
				return booking.Event{Kind: booking.EventEdit, Field: field}
			}
		}
	}

	text := strings.TrimSpace(msg.Text)
	if ev, ok := labelEvents[canonicalLabel(text)]; ok {
		return ev
	}
	if a.locations.Contains(text) {
		return booking.Event{Kind: booking.EventLocationChosen, Text: text}
	}
	return booking.Event{Kind: booking.EventText, Text: msg.Text}
}
