package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tablebot/booking"
)

// Client is the part of *tgbotapi.BotAPI the transport uses.
type Client interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// The pinned client library predates web app buttons, so reply keyboards
// are built from these types and marshalled as-is into reply_markup.
type keyboardButton struct {
	Text           string      `json:"text"`
	RequestContact bool        `json:"request_contact,omitempty"`
	WebApp         *webAppInfo `json:"web_app,omitempty"`
}

type webAppInfo struct {
	URL string `json:"url"`
}

type replyKeyboard struct {
	Keyboard       [][]keyboardButton `json:"keyboard"`
	ResizeKeyboard bool               `json:"resize_keyboard"`
}

// Messenger renders dialogue prompts as Telegram messages.
type Messenger struct {
	client Client
}

func NewMessenger(client Client) *Messenger {
	return &Messenger{client: client}
}

func (m *Messenger) Send(ctx context.Context, chatID int64, p booking.Prompt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, p.Text)
	if p.HTML {
		msg.ParseMode = tgbotapi.ModeHTML
	}
	msg.ReplyMarkup = markup(p.Choices)
	_, err := m.client.Send(msg)
	return err
}

func markup(choices [][]booking.Choice) interface{} {
	if len(choices) == 0 {
		return tgbotapi.NewRemoveKeyboard(true)
	}
	kb := replyKeyboard{ResizeKeyboard: true}
	for _, row := range choices {
		if len(row) == 0 {
			continue
		}
		buttons := make([]keyboardButton, 0, len(row))
		for _, c := range row {
			buttons = append(buttons, button(c))
		}
		kb.Keyboard = append(kb.Keyboard, buttons)
	}
	return kb
}

func button(c booking.Choice) keyboardButton {
	switch c.Action {
	case booking.ActionBegin:
		return keyboardButton{Text: LabelBegin}
	case booking.ActionMenu:
		return keyboardButton{Text: LabelMenu}
	case booking.ActionCancel:
		return keyboardButton{Text: LabelCancel}
	case booking.ActionRestart:
		return keyboardButton{Text: LabelRestart}
	case booking.ActionPhoneManual:
		return keyboardButton{Text: LabelPhoneManual}
	case booking.ActionPhoneContact:
		return keyboardButton{Text: LabelPhoneContact}
	case booking.ActionSendContact:
		return keyboardButton{Text: LabelSendContact, RequestContact: true}
	case booking.ActionOpenDatePicker:
		return keyboardButton{Text: LabelOpenDatePicker, WebApp: &webAppInfo{URL: c.Value}}
	case booking.ActionDatePicked:
		return keyboardButton{Text: LabelDatePicked}
	case booking.ActionConfirm:
		return keyboardButton{Text: LabelConfirm}
	case booking.ActionEditForm:
		return keyboardButton{Text: LabelEditForm, WebApp: &webAppInfo{URL: c.Value}}
	case booking.ActionMyBookings:
		return keyboardButton{Text: LabelMyBookings}
	}
	return keyboardButton{Text: c.Value}
}
