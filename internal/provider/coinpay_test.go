package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestCoinPayCreateTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(HMACHeader) == "" {
			t.Error("expected HMAC header on outbound API call")
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("custom"); got != "pu_7" {
			t.Errorf("expected custom=pu_7, got %q", got)
		}
		if got := r.PostForm.Get("currency1"); got != "USD" {
			t.Errorf("expected currency1=USD, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":"ok","result":{"txn_id":"tx_abc","status_url":"https://cp.example/tx_abc"}}`))
	}))
	defer srv.Close()

	c := NewCoinPay(srv.URL, "pub", "priv", "https://shop.example")
	tx, err := c.CreateTransaction(context.Background(), 25, "pu_7", "buyer@example.com")
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if tx.ID != "tx_abc" || tx.StatusURL != "https://cp.example/tx_abc" {
		t.Fatalf("unexpected transaction %+v", tx)
	}
}

func TestCoinPayCreateTransactionAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"invalid api key","result":{}}`))
	}))
	defer srv.Close()

	c := NewCoinPay(srv.URL, "pub", "priv", "https://shop.example")
	if _, err := c.CreateTransaction(context.Background(), 25, "pu_7", ""); err == nil {
		t.Fatal("expected error from api error field")
	}
}

func TestCoinPayVerifyIPN(t *testing.T) {
	c := NewCoinPay("https://cp.example", "pub", "priv_key", "https://shop.example")
	body := []byte(url.Values{
		"status": {"105"},
		"custom": {"pu_7"},
		"txn_id": {"tx_abc"},
	}.Encode())

	fields, err := c.VerifyIPN(body, c.Sign(body))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if fields.Get("custom") != "pu_7" || fields.Get("status") != "105" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestCoinPayVerifyIPNRejects(t *testing.T) {
	c := NewCoinPay("https://cp.example", "pub", "priv_key", "https://shop.example")
	body := []byte("status=105&custom=pu_7")

	cases := map[string]string{
		"missing header": "",
		"not hex":        "zzzz",
		"wrong key":      NewCoinPay("", "pub", "other_key", "").Sign(body),
	}
	for name, header := range cases {
		if _, err := c.VerifyIPN(body, header); !errors.Is(err, ErrBadSignature) {
			t.Errorf("%s: expected ErrBadSignature, got %v", name, err)
		}
	}

	// Correct signature over different bytes must not validate this body.
	other := c.Sign([]byte("status=2&custom=pu_8"))
	if _, err := c.VerifyIPN(body, other); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for mismatched body, got %v", err)
	}
}

func TestStatusComplete(t *testing.T) {
	for status, want := range map[int]bool{100: true, 105: true, 2: true, 1: false, 0: false, -1: false, 99: false} {
		if got := StatusComplete(status); got != want {
			t.Errorf("StatusComplete(%d) = %v, want %v", status, got, want)
		}
	}
}
