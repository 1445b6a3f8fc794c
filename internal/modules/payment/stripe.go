package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const stripeAPIBase = "https://api.stripe.com"

// stripeGateway drives Stripe PaymentIntents over its form-encoded REST API.
type stripeGateway struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	client        *http.Client
}

// NewStripeGateway creates a Stripe adapter.
func NewStripeGateway(secretKey, webhookSecret string, timeout time.Duration) Gateway {
	return &stripeGateway{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		baseURL:       stripeAPIBase,
		client:        &http.Client{Timeout: timeout},
	}
}

// stripeIntent is the subset of the PaymentIntent object we read.
type stripeIntent struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	ClientSecret     string `json:"client_secret"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	LatestCharge     string `json:"latest_charge"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

func (g *stripeGateway) CreateIntent(ctx context.Context, p *Payment, idempotencyKey string) (*Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(toMinorUnits(p.Amount), 10))
	form.Set("currency", strings.ToLower(p.Currency))
	form.Set("metadata[order_id]", p.OrderID.String())
	form.Set("metadata[payment_id]", p.ID.String())

	si, err := g.do(ctx, http.MethodPost, "/v1/payment_intents", form, idempotencyKey)
	if err != nil {
		return nil, err
	}
	return &Intent{
		ProviderPaymentID: si.ID,
		ClientSecret:      si.ClientSecret,
		Status:            stripeStatus(si.Status),
	}, nil
}

func (g *stripeGateway) Verify(ctx context.Context, p *Payment) (*Outcome, error) {
	if p.ProviderPaymentID == "" {
		return nil, &GatewayError{Provider: ProviderStripe, Op: "verify", Err: fmt.Errorf("no provider payment id")}
	}
	si, err := g.do(ctx, http.MethodGet, "/v1/payment_intents/"+p.ProviderPaymentID, nil, "")
	if err != nil {
		return nil, err
	}
	return stripeOutcome(si), nil
}

func (g *stripeGateway) Refund(ctx context.Context, p *Payment, amount float64) error {
	form := url.Values{}
	form.Set("payment_intent", p.ProviderPaymentID)
	form.Set("amount", strconv.FormatInt(toMinorUnits(amount), 10))

	_, err := g.do(ctx, http.MethodPost, "/v1/refunds", form, "")
	return err
}

// DecodeWebhook checks the Stripe-Signature header (t=<ts>,v1=<hmac>) against
// HMAC-SHA256 of "<ts>.<body>" before trusting anything in the payload.
func (g *stripeGateway) DecodeWebhook(r *http.Request, body []byte) (*WebhookEvent, error) {
	if err := verifyStripeSignature(r.Header.Get("Stripe-Signature"), body, g.webhookSecret, time.Now()); err != nil {
		return nil, err
	}

	var event struct {
		Type string `json:"type"`
		Data struct {
			Object stripeIntent `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, &GatewayError{Provider: ProviderStripe, Op: "webhook", Err: err}
	}

	si := event.Data.Object
	return &WebhookEvent{
		Type:              event.Type,
		ProviderPaymentID: si.ID,
		Outcome:           *stripeOutcome(&si),
	}, nil
}

func verifyStripeSignature(header string, body []byte, secret string, now time.Time) error {
	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return ErrBadSignature
	}

	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || now.Sub(time.Unix(sec, 0)) > 5*time.Minute {
		return ErrBadSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range sigs {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return ErrBadSignature
}

func (g *stripeGateway) do(ctx context.Context, method, path string, form url.Values, idempotencyKey string) (*stripeIntent, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, &GatewayError{Provider: ProviderStripe, Op: path, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &GatewayError{Provider: ProviderStripe, Op: path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &GatewayError{Provider: ProviderStripe, Op: path, Err: err}
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		return nil, &GatewayError{
			Provider: ProviderStripe,
			Op:       path,
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Error.Message),
		}
	}

	var si stripeIntent
	if err := json.Unmarshal(raw, &si); err != nil {
		return nil, &GatewayError{Provider: ProviderStripe, Op: path, Err: err}
	}
	return &si, nil
}

func stripeOutcome(si *stripeIntent) *Outcome {
	out := &Outcome{
		Status:            stripeStatus(si.Status),
		ProviderPaymentID: si.ID,
		TransactionID:     si.LatestCharge,
		Amount:            float64(si.Amount) / 100,
		Currency:          strings.ToUpper(si.Currency),
	}
	if si.LastPaymentError != nil {
		out.FailureReason = si.LastPaymentError.Message
	}
	return out
}

// stripeStatus maps PaymentIntent statuses onto ours.
func stripeStatus(s string) Status {
	switch s {
	case "succeeded":
		return StatusCompleted
	case "canceled":
		return StatusFailed
	default:
		// processing, requires_payment_method, requires_confirmation,
		// requires_action: still in flight.
		return StatusPending
	}
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
