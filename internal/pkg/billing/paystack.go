package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CertFox/internal/pkg/env"
	"github.com/ManuelReschke/CertFox/internal/pkg/metrics"
)

const (
	defaultPaystackBaseURL = "https://api.paystack.co"
	paystackTimeout        = 10 * time.Second
)

// TransactionStatus is the gateway-side outcome of a payment attempt.
type TransactionStatus string

const (
	TransactionSuccess   TransactionStatus = "success"
	TransactionFailed    TransactionStatus = "failed"
	TransactionAbandoned TransactionStatus = "abandoned"
	TransactionPending   TransactionStatus = "pending"
)

// Gateway is the payment provider surface the coordinator relies on.
type Gateway interface {
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
	VerifyWebhookSignature(rawBody []byte, signature string) bool
}

type InitializeRequest struct {
	Email       string
	AmountMinor int64
	Currency    string
	Reference   string
	CallbackURL string
	Metadata    map[string]interface{}
}

type InitializeResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

type Authorization struct {
	AuthorizationCode string
	CardType          string
	Last4             string
	Bank              string
}

type VerifyResult struct {
	Status          TransactionStatus
	Reference       string
	TransactionID   string
	AmountMinor     int64
	Currency        string
	Channel         string
	PaidAt          *time.Time
	FeesMinor       int64
	IPAddress       string
	GatewayResponse string
	CustomerCode    string
	Authorization   Authorization
}

// PaystackClient talks to the Paystack transaction API. The secret key is
// looked up on every request so it can be rotated without a restart.
type PaystackClient struct {
	BaseURL    string
	HTTPClient *http.Client
	SecretKey  func() string
	Metrics    *metrics.Metrics
}

func NewPaystackClientFromEnv() *PaystackClient {
	return &PaystackClient{
		BaseURL: strings.TrimRight(strings.TrimSpace(env.GetEnv("PAYSTACK_BASE_URL", defaultPaystackBaseURL)), "/"),
		HTTPClient: &http.Client{
			Timeout: paystackTimeout,
		},
		SecretKey: PaystackSecretKey,
		Metrics:   metrics.Default(),
	}
}

// PaystackSecretKey reads PAYSTACK_SECRET_KEY from the environment.
func PaystackSecretKey() string {
	return strings.TrimSpace(env.GetEnv("PAYSTACK_SECRET_KEY", ""))
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *PaystackClient) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	if strings.TrimSpace(req.Email) == "" {
		return nil, newError(KindValidation, nil, "customer email is required")
	}
	if req.AmountMinor <= 0 {
		return nil, newError(KindValidation, nil, "amount must be positive")
	}
	if strings.TrimSpace(req.Reference) == "" {
		return nil, newError(KindValidation, nil, "reference is required")
	}

	payload := map[string]interface{}{
		"email":     req.Email,
		"amount":    req.AmountMinor,
		"reference": req.Reference,
	}
	if req.Currency != "" {
		payload["currency"] = req.Currency
	}
	if req.CallbackURL != "" {
		payload["callback_url"] = req.CallbackURL
	}
	if len(req.Metadata) > 0 {
		payload["metadata"] = req.Metadata
	}

	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := c.do(ctx, "initialize", http.MethodPost, "/transaction/initialize", payload, &data); err != nil {
		return nil, err
	}
	if data.AuthorizationURL == "" {
		return nil, newError(KindGatewayFatal, nil, "payment gateway returned no authorization url")
	}
	if data.Reference == "" {
		data.Reference = req.Reference
	}
	return &InitializeResult{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}

func (c *PaystackClient) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return nil, newError(KindValidation, nil, "reference is required")
	}

	var data struct {
		ID              json.Number `json:"id"`
		Status          string      `json:"status"`
		Reference       string      `json:"reference"`
		Amount          int64       `json:"amount"`
		Currency        string      `json:"currency"`
		Channel         string      `json:"channel"`
		PaidAt          string      `json:"paid_at"`
		Fees            *int64      `json:"fees"`
		IPAddress       string      `json:"ip_address"`
		GatewayResponse string      `json:"gateway_response"`
		Authorization   struct {
			AuthorizationCode string `json:"authorization_code"`
			CardType          string `json:"card_type"`
			Last4             string `json:"last4"`
			Bank              string `json:"bank"`
		} `json:"authorization"`
		Customer struct {
			CustomerCode string `json:"customer_code"`
		} `json:"customer"`
	}
	if err := c.do(ctx, "verify", http.MethodGet, "/transaction/verify/"+url.PathEscape(ref), nil, &data); err != nil {
		return nil, err
	}

	out := &VerifyResult{
		Status:          normalizeTransactionStatus(data.Status),
		Reference:       data.Reference,
		TransactionID:   data.ID.String(),
		AmountMinor:     data.Amount,
		Currency:        data.Currency,
		Channel:         data.Channel,
		IPAddress:       data.IPAddress,
		GatewayResponse: data.GatewayResponse,
		CustomerCode:    data.Customer.CustomerCode,
		Authorization: Authorization{
			AuthorizationCode: data.Authorization.AuthorizationCode,
			CardType:          strings.TrimSpace(data.Authorization.CardType),
			Last4:             data.Authorization.Last4,
			Bank:              data.Authorization.Bank,
		},
	}
	if out.Reference == "" {
		out.Reference = ref
	}
	if data.Fees != nil {
		out.FeesMinor = *data.Fees
	}
	if data.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, data.PaidAt); err == nil {
			t = t.UTC()
			out.PaidAt = &t
		}
	}
	return out, nil
}

func (c *PaystackClient) VerifyWebhookSignature(rawBody []byte, signature string) bool {
	return VerifyPaystackWebhookSignature(rawBody, signature, c.secret())
}

func (c *PaystackClient) secret() string {
	if c.SecretKey == nil {
		return PaystackSecretKey()
	}
	return c.SecretKey()
}

func normalizeTransactionStatus(raw string) TransactionStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success":
		return TransactionSuccess
	case "failed", "reversed":
		return TransactionFailed
	case "abandoned":
		return TransactionAbandoned
	default:
		// ongoing, pending, processing, queued
		return TransactionPending
	}
}

// do performs one API call and classifies every failure.
func (c *PaystackClient) do(ctx context.Context, op, method, path string, payload interface{}, out interface{}) error {
	secret := c.secret()
	if secret == "" {
		return newError(KindConfig, nil, "PAYSTACK_SECRET_KEY is not configured")
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return newError(KindInternal, err, "encode %s request", op)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return newError(KindInternal, err, "build %s request", op)
	}
	req.Header.Set("Authorization", "Bearer "+secret)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	c.Metrics.ObserveGateway(op, start)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return newError(KindGatewayTransient, err, "payment gateway timed out")
		}
		return newError(KindGatewayTransient, err, "payment gateway unreachable")
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var envelope paystackEnvelope
	_ = json.Unmarshal(raw, &envelope)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		log.Errorf("[Paystack] %s rejected credentials: status=%d", op, resp.StatusCode)
		return newError(KindConfig, fmt.Errorf("status=%d", resp.StatusCode), "payment gateway rejected the configured secret key")
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		log.Warnf("[Paystack] %s failed: status=%d body=%s", op, resp.StatusCode, string(raw))
		return newError(KindGatewayTransient, fmt.Errorf("status=%d", resp.StatusCode), "payment gateway unavailable")
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg := envelope.Message
		if msg == "" {
			msg = fmt.Sprintf("payment gateway %s failed", op)
		}
		return newError(KindGatewayFatal, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(raw)), "%s", msg)
	}

	if !envelope.Status {
		msg := envelope.Message
		if msg == "" {
			msg = fmt.Sprintf("payment gateway %s was rejected", op)
		}
		return newError(KindGatewayFatal, nil, "%s", msg)
	}
	if out != nil && len(envelope.Data) > 0 {
		dec := json.NewDecoder(bytes.NewReader(envelope.Data))
		dec.UseNumber()
		if err := dec.Decode(out); err != nil {
			return newError(KindGatewayTransient, err, "decode %s response", op)
		}
	}
	return nil
}
