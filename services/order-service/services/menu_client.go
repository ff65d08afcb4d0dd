package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/reservation"
)

// Error codes returned by the menu service for definitive refusals.
const (
	menuCodeInsufficientQuantity = "INSUFFICIENT_QUANTITY"
	menuCodeRecordNotFound       = "RECORD_NOT_FOUND"
)

// MenuClient is the order service's view of the menu ledger over HTTP.
type MenuClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ reservation.Ledger = (*MenuClient)(nil)

func NewMenuClient(baseURL string) *MenuClient {
	return &MenuClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type availabilityResponse struct {
	Available bool `json:"available"`
}

type menuError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

// CheckAvailability calls GET /inventory/availability.
func (c *MenuClient) CheckAvailability(ctx context.Context, date, foodItemID string, quantity int) (bool, error) {
	q := url.Values{}
	q.Set("date", date)
	q.Set("food_item_id", foodItemID)
	q.Set("quantity", strconv.Itoa(quantity))
	endpoint := fmt.Sprintf("%s/inventory/availability?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("menu availability request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, decodeMenuError(resp, "availability")
	}

	var out availabilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode availability response: %w", err)
	}
	return out.Available, nil
}

// AdjustSold calls PATCH /inventory/adjust. Refusals come back as the
// reservation sentinels so the coordinator can tell them from outages.
func (c *MenuClient) AdjustSold(ctx context.Context, adj reservation.AdjustRequest) error {
	body, err := json.Marshal(adj)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/inventory/adjust", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("menu adjust request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeMenuError(resp, "adjust")
	}
	return nil
}

func decodeMenuError(resp *http.Response, op string) error {
	var me menuError
	_ = json.NewDecoder(resp.Body).Decode(&me)

	switch {
	case resp.StatusCode == http.StatusConflict && me.Code == menuCodeInsufficientQuantity:
		return fmt.Errorf("menu %s: %w", op, reservation.ErrInsufficientQuantity)
	case resp.StatusCode == http.StatusNotFound && me.Code == menuCodeRecordNotFound:
		return fmt.Errorf("menu %s: %w", op, reservation.ErrRecordNotFound)
	}

	msg := me.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("menu %s failed: status %d: %s", op, resp.StatusCode, msg)
}
