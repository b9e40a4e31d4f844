// Package payment takes deposits through an external gateway.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/example/tablehold/internal/domain/reservation"
)

// ErrDeclined is returned when the gateway refuses the charge.
var ErrDeclined = errors.New("charge declined")

// HTTPGateway charges deposits through a JSON gateway API. Charges carry an
// idempotency key so a retried request never takes money twice.
type HTTPGateway struct {
	hc      *http.Client
	baseURL string
	token   string
}

func NewHTTPGateway(baseURL, token string) *HTTPGateway {
	return &HTTPGateway{
		hc:      &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

type chargeRequest struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	PaymentMethod  string `json:"paymentMethod"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type chargeResponse struct {
	Reference string `json:"reference"`
	Message   string `json:"message"`
}

func (g *HTTPGateway) Charge(ctx context.Context, c reservation.Charge) (reservation.Receipt, error) {
	body, err := json.Marshal(chargeRequest{
		Amount:         c.Amount,
		Currency:       "usd",
		PaymentMethod:  c.Method,
		IdempotencyKey: c.IdempotencyKey,
	})
	if err != nil {
		return reservation.Receipt{}, err
	}

	status, b, err := g.do(ctx, http.MethodPost, g.baseURL+"/charges", c.IdempotencyKey, body)
	if err != nil {
		return reservation.Receipt{}, fmt.Errorf("payment gateway: %w", err)
	}

	var res chargeResponse
	_ = json.Unmarshal(b, &res)
	switch {
	case status == http.StatusPaymentRequired || status == http.StatusUnprocessableEntity:
		if res.Message != "" {
			return reservation.Receipt{}, fmt.Errorf("%w: %s", ErrDeclined, res.Message)
		}
		return reservation.Receipt{}, ErrDeclined
	case status >= 300:
		if res.Message != "" {
			return reservation.Receipt{}, fmt.Errorf("payment gateway: %s (status=%d)", res.Message, status)
		}
		return reservation.Receipt{}, fmt.Errorf("payment gateway failed (status=%d)", status)
	}
	if res.Reference == "" {
		return reservation.Receipt{}, errors.New("payment gateway: response missing reference")
	}
	return reservation.Receipt{Reference: res.Reference}, nil
}

func (g *HTTPGateway) do(ctx context.Context, method, rawURL, idempotencyKey string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("accept", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("idempotency-key", idempotencyKey)
	}
	if g.token != "" {
		req.Header.Set("authorization", "Bearer "+g.token)
	}

	res, err := g.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, b, nil
}
