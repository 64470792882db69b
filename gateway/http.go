package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"tablebot/booking"
)

// HTTP delivers bookings through a relay's POST /booking endpoint.
type HTTP struct {
	endpoint   string
	httpClient *http.Client
	log        *zap.Logger
}

type relayRequest struct {
	UserID        int64  `json:"user_id,omitempty"`
	Establishment string `json:"establishment"`
	DateTime      string `json:"datetime"`
	Guests        int    `json:"guests"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
}

type relayResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewHTTP posts to endpoint, which is either the full /booking URL or the
// relay base URL.
func NewHTTP(endpoint string, timeout time.Duration, log *zap.Logger) *HTTP {
	if !strings.HasSuffix(strings.TrimRight(endpoint, "/"), "/booking") {
		endpoint = strings.TrimRight(endpoint, "/") + "/booking"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTP{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Submit makes one POST. The guest is confirmed by the dialogue, so chat_id
// is left out and the relay only notifies staff. user_id lets the relay
// journal the booking under the guest.
func (h *HTTP) Submit(ctx context.Context, userID int64, r booking.Record) error {
	body, err := json.Marshal(relayRequest{
		UserID:        userID,
		Establishment: r.Establishment,
		DateTime:      r.DateTime,
		Guests:        r.Guests,
		Name:          r.Name,
		Phone:         r.Phone,
	})
	if err != nil {
		return &DeliveryError{Op: "relay request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Op: "relay request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return &DeliveryError{Op: "relay request", Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return &DeliveryError{Op: "relay request", Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))}
	}
	var out relayResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return &DeliveryError{Op: "relay response", Err: err}
	}
	if out.Status != "success" {
		return &DeliveryError{Op: "relay response", Err: fmt.Errorf("status %q", out.Status)}
	}

	h.log.Info("booking delivered via relay", zap.Int64("user_id", userID), zap.String("endpoint", h.endpoint))
	return nil
}
