package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ManuelReschke/CertFox/internal/pkg/env"
)

func newTestPaystack(t *testing.T, handler http.HandlerFunc) *PaystackClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &PaystackClient{
		BaseURL:    srv.URL,
		HTTPClient: &http.Client{Timeout: 2 * time.Second},
		SecretKey:  func() string { return "sk_test_123" },
	}
}

func TestPaystackInitialize(t *testing.T) {
	c := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transaction/initialize" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test_123" {
			t.Fatalf("Authorization = %q", got)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["amount"].(float64) != 1250000 {
			t.Fatalf("amount = %v, want kobo value 1250000", body["amount"])
		}
		if body["callback_url"] != "https://app.test/billing/callback" {
			t.Fatalf("callback_url = %v", body["callback_url"])
		}
		_, _ = w.Write([]byte(`{"status":true,"message":"Authorization URL created","data":{"authorization_url":"https://checkout.paystack.com/abc","access_code":"abc","reference":"CREDIT_1_org"}}`))
	})

	res, err := c.Initialize(context.Background(), InitializeRequest{
		Email:       "ops@acme.test",
		AmountMinor: 1250000,
		Reference:   "CREDIT_1_org",
		CallbackURL: "https://app.test/billing/callback",
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if res.AuthorizationURL != "https://checkout.paystack.com/abc" || res.AccessCode != "abc" || res.Reference != "CREDIT_1_org" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestPaystackVerify(t *testing.T) {
	c := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/verify/SUB_1_plan" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"status":true,"message":"Verification successful","data":{
			"id":4099260516,"status":"success","reference":"SUB_1_plan","amount":1500000,"currency":"NGN",
			"channel":"card","paid_at":"2026-03-10T12:00:05.000Z","fees":32500,"ip_address":"41.1.1.1",
			"authorization":{"authorization_code":"AUTH_x","card_type":"visa ","last4":"4081","bank":"TEST BANK"},
			"customer":{"customer_code":"CUS_1"}}}`))
	})

	res, err := c.Verify(context.Background(), "SUB_1_plan")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Status != TransactionSuccess {
		t.Fatalf("status = %q", res.Status)
	}
	if res.TransactionID != "4099260516" || res.AmountMinor != 1500000 || res.FeesMinor != 32500 {
		t.Fatalf("unexpected amounts %+v", res)
	}
	if res.PaidAt == nil || !res.PaidAt.Equal(time.Date(2026, 3, 10, 12, 0, 5, 0, time.UTC)) {
		t.Fatalf("paid_at = %v", res.PaidAt)
	}
	if res.Authorization.CardType != "visa" || res.Authorization.Last4 != "4081" || res.CustomerCode != "CUS_1" {
		t.Fatalf("unexpected authorization %+v", res.Authorization)
	}
}

func TestPaystackErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Kind
	}{
		{"unauthorized", http.StatusUnauthorized, `{"status":false,"message":"Invalid key"}`, KindConfig},
		{"server error", http.StatusBadGateway, `oops`, KindGatewayTransient},
		{"rate limited", http.StatusTooManyRequests, `{}`, KindGatewayTransient},
		{"bad request", http.StatusBadRequest, `{"status":false,"message":"Duplicate Transaction Reference"}`, KindGatewayFatal},
		{"rejected envelope", http.StatusOK, `{"status":false,"message":"Transaction reference not found"}`, KindGatewayFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Verify(context.Background(), "ref")
			if got := KindOf(err); got != tt.want {
				t.Fatalf("KindOf(%v) = %s, want %s", err, got, tt.want)
			}
		})
	}
}

func TestPaystackTimeoutIsTransient(t *testing.T) {
	c := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	c.HTTPClient.Timeout = 20 * time.Millisecond

	_, err := c.Verify(context.Background(), "ref")
	if KindOf(err) != KindGatewayTransient {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestPaystackSecretIsReadPerCall(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"status":true,"data":{"status":"pending","reference":"r"}}`))
	}))
	defer srv.Close()

	old := env.Env
	defer func() { env.Env = old }()

	c := &PaystackClient{BaseURL: srv.URL, HTTPClient: srv.Client()}

	env.Env = map[string]string{}
	if _, err := c.Verify(context.Background(), "r"); KindOf(err) != KindConfig {
		t.Fatalf("expected config error without secret, got %v", err)
	}

	env.Env = map[string]string{"PAYSTACK_SECRET_KEY": "sk_first"}
	if _, err := c.Verify(context.Background(), "r"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	env.Env = map[string]string{"PAYSTACK_SECRET_KEY": "sk_rotated"}
	if _, err := c.Verify(context.Background(), "r"); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if len(seen) != 2 || seen[0] != "Bearer sk_first" || seen[1] != "Bearer sk_rotated" {
		t.Fatalf("unexpected auth headers %v", seen)
	}
}

func TestNormalizeTransactionStatus(t *testing.T) {
	tests := map[string]TransactionStatus{
		"success":   TransactionSuccess,
		"SUCCESS":   TransactionSuccess,
		"failed":    TransactionFailed,
		"reversed":  TransactionFailed,
		"abandoned": TransactionAbandoned,
		"ongoing":   TransactionPending,
		"":          TransactionPending,
	}
	for in, want := range tests {
		if got := normalizeTransactionStatus(in); got != want {
			t.Fatalf("normalizeTransactionStatus(%q) = %q, want %q", in, got, want)
		}
	}
}
