package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client reads pending selections from a remote relay.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Pop calls GET /get_booking. A 404 is a miss, not an error.
func (c *Client) Pop(ctx context.Context, userID int64) (string, bool, error) {
	q := url.Values{"user_id": {strconv.FormatInt(userID, 10)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/get_booking?"+q.Encode(), nil)
	if err != nil {
		return "", false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("get pending booking: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("get pending booking: status %d", resp.StatusCode)
	}

	var body struct {
		SelectedDateTime string `json:"selected_datetime"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", false, fmt.Errorf("decode pending booking: %w", err)
	}
	return body.SelectedDateTime, true, nil
}
