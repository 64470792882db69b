package gateway

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"tablebot/booking"
)

// Sender is the part of the Telegram client the gateway needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Journal keeps a copy of every booking delivered to staff. userID is the
// guest's Telegram user id, or 0 when the booking arrived without one.
type Journal interface {
	Append(userID int64, r booking.Record) error
}

// Telegram delivers bookings straight to the staff chat.
type Telegram struct {
	bot         Sender
	staffChatID int64
	journal     Journal
	log         *zap.Logger
}

func NewTelegram(bot Sender, staffChatID int64, log *zap.Logger) *Telegram {
	if log == nil {
		log = zap.NewNop()
	}
	return &Telegram{bot: bot, staffChatID: staffChatID, log: log}
}

// WithJournal attaches a journal written after each successful delivery.
func (t *Telegram) WithJournal(j Journal) *Telegram {
	t.journal = j
	return t
}

// Submit sends the staff notification once. The Telegram client has no
// per-call context, so ctx is only checked before the send.
func (t *Telegram) Submit(ctx context.Context, userID int64, r booking.Record) error {
	if err := ctx.Err(); err != nil {
		return &DeliveryError{Op: "staff notification", Err: err}
	}

	msg := tgbotapi.NewMessage(t.staffChatID, StaffMessage(r))
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := t.bot.Send(msg); err != nil {
		return &DeliveryError{Op: "staff notification", Err: err}
	}

	t.log.Info("booking delivered to staff",
		zap.Int64("user_id", userID),
		zap.Int64("staff_chat_id", t.staffChatID),
	)
	if t.journal != nil {
		if err := t.journal.Append(userID, r); err != nil {
			t.log.Error("failed to journal booking", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	return nil
}

// Confirm sends the guest a copy of the booking. It is independent of the
// staff notification and never undoes it.
func (t *Telegram) Confirm(ctx context.Context, chatID int64, r booking.Record) error {
	if err := ctx.Err(); err != nil {
		return &DeliveryError{Op: "guest confirmation", Err: err}
	}
	msg := tgbotapi.NewMessage(chatID, GuestMessage(r))
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := t.bot.Send(msg); err != nil {
		return &DeliveryError{Op: "guest confirmation", Err: err}
	}
	return nil
}

// StaffMessage renders the staff notification as Telegram HTML.
func StaffMessage(r booking.Record) string {
	var b strings.Builder
	b.WriteString("📅 <b>Бронювання</b>\n")
	fmt.Fprintf(&b, "🏠 %s\n", html.EscapeString(r.Establishment))
	fmt.Fprintf(&b, "🕒 %s\n", html.EscapeString(r.DateTime))
	fmt.Fprintf(&b, "👥 %d\n", r.Guests)
	fmt.Fprintf(&b, "📝 %s\n", html.EscapeString(r.Name))
	fmt.Fprintf(&b, "📞 %s", html.EscapeString(r.Phone))
	return b.String()
}

// GuestMessage renders the confirmation sent to the guest.
func GuestMessage(r booking.Record) string {
	return fmt.Sprintf(
		"Дякуємо! Бронювання отримано ✅\n\n🏠 %s\n🕒 %s\n👥 %d\n\nНаш адміністратор незабаром зв'яжеться з вами.",
		html.EscapeString(r.Establishment), html.EscapeString(r.DateTime), r.Guests,
	)
}
