package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Sink receives decoded updates.
type Sink interface {
	Accept(u Update)
}

const retryDelay = 3 * time.Second

// Poller reads updates with getUpdates. Updates are decoded from the raw
// response so that fields unknown to the client library survive.
type Poller struct {
	client  Client
	sink    Sink
	timeout int
	retry   time.Duration
	log     *zap.Logger
}

func NewPoller(client Client, sink Sink, timeoutSec int, log *zap.Logger) *Poller {
	return &Poller{client: client, sink: sink, timeout: timeoutSec, retry: retryDelay, log: log}
}

// Run polls until ctx is cancelled. Failed or undecodable batches are retried.
// A batch that returns after cancellation is dropped without moving the
// offset, so Telegram redelivers it to the next run.
func (p *Poller) Run(ctx context.Context) {
	offset := 0
	for ctx.Err() == nil {
		cfg := tgbotapi.NewUpdate(offset)
		cfg.Timeout = p.timeout
		resp, err := p.client.Request(cfg)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			p.log.Warn("failed to get updates, retrying", zap.Error(err), zap.Duration("delay", p.retry))
			p.pause(ctx)
			continue
		}

		var raws []json.RawMessage
		if err := json.Unmarshal(resp.Result, &raws); err != nil {
			p.log.Error("failed to decode updates, retrying", zap.Error(err), zap.Duration("delay", p.retry))
			p.pause(ctx)
			continue
		}
		for _, raw := range raws {
			u, err := DecodeUpdate(raw)
			if err != nil {
				p.log.Warn("skipping undecodable update", zap.Error(err))
				continue
			}
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			p.sink.Accept(u)
		}
	}
}

func (p *Poller) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.retry):
	}
}

// Webhook receives updates pushed by Telegram.
type Webhook struct {
	token string
	sink  Sink
	log   *zap.Logger
}

func NewWebhook(token string, sink Sink, log *zap.Logger) *Webhook {
	return &Webhook{token: token, sink: sink, log: log}
}

// Route is the gin pattern the webhook is mounted on. Bot tokens contain a
// colon, so the token is matched as a parameter rather than a literal path.
const Route = "/telegram/:token"

// Path is the public webhook path; the token keeps it unguessable.
func Path(token string) string {
	return "/telegram/" + token
}

// Handle acknowledges the update at once and processes it asynchronously.
func (w *Webhook) Handle(c *gin.Context) {
	if c.Param("token") != w.token {
		c.Status(http.StatusNotFound)
		return
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	u, err := DecodeUpdate(raw)
	if err != nil {
		w.log.Warn("rejecting undecodable webhook update", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}
	w.sink.Accept(u)
	c.Status(http.StatusOK)
}

// RegisterWebhook points Telegram at url.
func RegisterWebhook(client Client, url string) error {
	cfg, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("webhook url: %w", err)
	}
	if _, err := client.Request(cfg); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

// RemoveWebhook switches the bot back to getUpdates.
func RemoveWebhook(client Client) error {
	if _, err := client.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}
