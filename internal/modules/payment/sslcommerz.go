package payment

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	sslcommerzSandboxBase = "https://sandbox.sslcommerz.com"
	sslcommerzLiveBase    = "https://securepay.sslcommerz.com"
)

// sslcommerzGateway drives SSLCommerz hosted checkout sessions.
type sslcommerzGateway struct {
	storeID   string
	storePass string
	baseURL   string
	client    *http.Client
}

// NewSSLCommerzGateway creates an SSLCommerz adapter.
func NewSSLCommerzGateway(storeID, storePass string, live bool, timeout time.Duration) Gateway {
	base := sslcommerzSandboxBase
	if live {
		base = sslcommerzLiveBase
	}
	return &sslcommerzGateway{
		storeID:   storeID,
		storePass: storePass,
		baseURL:   base,
		client:    &http.Client{Timeout: timeout},
	}
}

func (g *sslcommerzGateway) CreateIntent(ctx context.Context, p *Payment, idempotencyKey string) (*Intent, error) {
	// tran_id carries our payment id: SSLCommerz echoes it back in the IPN
	// and it is what we look the payment up by.
	form := url.Values{}
	form.Set("store_id", g.storeID)
	form.Set("store_passwd", g.storePass)
	form.Set("tran_id", p.ID.String())
	form.Set("total_amount", strconv.FormatFloat(p.Amount, 'f', 2, 64))
	form.Set("currency", strings.ToUpper(p.Currency))
	form.Set("value_a", p.OrderID.String())

	var out struct {
		Status         string `json:"status"`
		SessionKey     string `json:"sessionkey"`
		GatewayPageURL string `json:"GatewayPageURL"`
		FailedReason   string `json:"failedreason"`
	}
	if err := g.do(ctx, "/gwprocess/v4/api.php", form, &out); err != nil {
		return nil, err
	}
	if !strings.EqualFold(out.Status, "SUCCESS") {
		return nil, &GatewayError{
			Provider: ProviderSSLCommerz,
			Op:       "create session",
			Err:      fmt.Errorf("session rejected: %s", out.FailedReason),
		}
	}
	return &Intent{
		ProviderPaymentID: out.SessionKey,
		RedirectURL:       out.GatewayPageURL,
		Status:            StatusPending,
	}, nil
}

// sslcommerzTx is the validator / IPN transaction shape.
type sslcommerzTx struct {
	Status   string `json:"status"`
	TranID   string `json:"tran_id"`
	ValID    string `json:"val_id"`
	BankTxID string `json:"bank_tran_id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Error    string `json:"error"`
}

func (g *sslcommerzGateway) Verify(ctx context.Context, p *Payment) (*Outcome, error) {
	q := url.Values{}
	q.Set("tran_id", p.ID.String())
	q.Set("store_id", g.storeID)
	q.Set("store_passwd", g.storePass)
	q.Set("format", "json")

	var out struct {
		APIConnect string         `json:"APIConnect"`
		NoOfTrans  int            `json:"no_of_trans_found"`
		Element    []sslcommerzTx `json:"element"`
	}
	if err := g.doGet(ctx, "/validator/api/merchantTransIDvalidationAPI.php?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	if !strings.EqualFold(out.APIConnect, "DONE") || len(out.Element) == 0 {
		return nil, &GatewayError{
			Provider: ProviderSSLCommerz,
			Op:       "verify",
			Err:      fmt.Errorf("transaction %s not found at provider", p.ID),
		}
	}

	// The most recent attempt for this tran_id wins.
	tx := out.Element[len(out.Element)-1]
	return sslcommerzOutcome(&tx), nil
}

func (g *sslcommerzGateway) Refund(ctx context.Context, p *Payment, amount float64) error {
	form := url.Values{}
	form.Set("store_id", g.storeID)
	form.Set("store_passwd", g.storePass)
	form.Set("bank_tran_id", p.TransactionID)
	form.Set("refund_amount", strconv.FormatFloat(amount, 'f', 2, 64))
	form.Set("refund_remarks", "order refund")
	form.Set("format", "json")

	var out struct {
		Status      string `json:"status"`
		ErrorReason string `json:"errorReason"`
	}
	if err := g.do(ctx, "/validator/api/merchantTransIDvalidationAPI.php", form, &out); err != nil {
		return err
	}
	if !strings.EqualFold(out.Status, "success") {
		return &GatewayError{
			Provider: ProviderSSLCommerz,
			Op:       "refund",
			Err:      fmt.Errorf("refund rejected: %s", out.ErrorReason),
		}
	}
	return nil
}

// DecodeWebhook handles the IPN POST. SSLCommerz signs it with verify_sign:
// an MD5 over the verify_key fields plus md5(store_passwd).
func (g *sslcommerzGateway) DecodeWebhook(r *http.Request, body []byte) (*WebhookEvent, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, &GatewayError{Provider: ProviderSSLCommerz, Op: "ipn", Err: err}
	}

	if !verifySSLCommerzSign(form, g.storePass) {
		return nil, ErrBadSignature
	}

	tx := sslcommerzTx{
		Status:   form.Get("status"),
		TranID:   form.Get("tran_id"),
		ValID:    form.Get("val_id"),
		BankTxID: form.Get("bank_tran_id"),
		Amount:   form.Get("amount"),
		Currency: form.Get("currency"),
		Error:    form.Get("error"),
	}
	return &WebhookEvent{
		Type:          "ipn." + strings.ToLower(tx.Status),
		TransactionID: tx.TranID,
		Outcome:       *sslcommerzOutcome(&tx),
	}, nil
}

func verifySSLCommerzSign(form url.Values, storePass string) bool {
	sign := form.Get("verify_sign")
	keys := form.Get("verify_key")
	if sign == "" || keys == "" {
		return false
	}

	names := strings.Split(keys, ",")
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteString("=")
		b.WriteString(form.Get(name))
		b.WriteString("&")
	}
	passHash := md5.Sum([]byte(storePass))
	b.WriteString("store_passwd=")
	b.WriteString(hex.EncodeToString(passHash[:]))

	sum := md5.Sum([]byte(b.String()))
	return strings.EqualFold(hex.EncodeToString(sum[:]), sign)
}

func (g *sslcommerzGateway) do(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return &GatewayError{Provider: ProviderSSLCommerz, Op: path, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return g.send(req, path, out)
}

func (g *sslcommerzGateway) doGet(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return &GatewayError{Provider: ProviderSSLCommerz, Op: path, Err: err}
	}
	return g.send(req, path, out)
}

func (g *sslcommerzGateway) send(req *http.Request, path string, out interface{}) error {
	resp, err := g.client.Do(req)
	if err != nil {
		return &GatewayError{Provider: ProviderSSLCommerz, Op: path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &GatewayError{Provider: ProviderSSLCommerz, Op: path, Err: err}
	}
	if resp.StatusCode >= 400 {
		return &GatewayError{
			Provider: ProviderSSLCommerz,
			Op:       path,
			Err:      fmt.Errorf("status %d", resp.StatusCode),
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &GatewayError{Provider: ProviderSSLCommerz, Op: path, Err: err}
	}
	return nil
}

func sslcommerzOutcome(tx *sslcommerzTx) *Outcome {
	amount, _ := strconv.ParseFloat(tx.Amount, 64)
	return &Outcome{
		Status:            sslcommerzStatus(tx.Status),
		ProviderPaymentID: tx.ValID,
		TransactionID:     tx.BankTxID,
		Amount:            amount,
		Currency:          strings.ToUpper(tx.Currency),
		FailureReason:     tx.Error,
	}
}

// sslcommerzStatus maps validator statuses onto ours.
func sslcommerzStatus(s string) Status {
	switch strings.ToUpper(s) {
	case "VALID", "VALIDATED":
		return StatusCompleted
	case "FAILED", "CANCELLED", "EXPIRED":
		return StatusFailed
	default:
		return StatusPending
	}
}
