package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCheckoutCreateSession(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk_test" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotForm = map[string]string{
			"metadata[purchaseId]":  r.PostForm.Get("metadata[purchaseId]"),
			"line_items[0][amount]": r.PostForm.Get("line_items[0][amount]"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"cs_123","url":"https://pay.example/cs_123"}`))
	}))
	defer srv.Close()

	c := NewCheckout(srv.URL, "sk_test", "whsec", "https://shop.example")
	sess, err := c.CreateSession(context.Background(), 10, "purchase-1", "Plan 10")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.ID != "cs_123" || sess.URL != "https://pay.example/cs_123" {
		t.Fatalf("unexpected session %+v", sess)
	}
	if gotForm["metadata[purchaseId]"] != "purchase-1" {
		t.Fatalf("correlation token not embedded, got %q", gotForm["metadata[purchaseId]"])
	}
	if gotForm["line_items[0][amount]"] != "1000" {
		t.Fatalf("expected amount in cents 1000, got %q", gotForm["line_items[0][amount]"])
	}
}

func TestCheckoutCreateSessionProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate_limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewCheckout(srv.URL, "sk_test", "whsec", "https://shop.example")
	if _, err := c.CreateSession(context.Background(), 10, "p", "n"); err == nil {
		t.Fatal("expected error on non-2xx response")
	}
}

func TestCheckoutVerifyWebhook(t *testing.T) {
	c := NewCheckout("https://api.example", "sk", "whsec_test", "https://shop.example")
	body := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1","metadata":{"purchaseId":"pu_42"}}}}`)
	header := c.SignWebhook(body, time.Now())

	ev, err := c.VerifyWebhook(body, header)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ev.Type != EventSessionCompleted {
		t.Fatalf("unexpected type %q", ev.Type)
	}
	if ev.PurchaseID() != "pu_42" {
		t.Fatalf("unexpected purchase id %q", ev.PurchaseID())
	}
	if string(ev.Raw) != string(body) {
		t.Fatal("raw payload not preserved")
	}
}

func TestCheckoutVerifyWebhookRejects(t *testing.T) {
	c := NewCheckout("https://api.example", "sk", "whsec_test", "https://shop.example")
	body := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	good := c.SignWebhook(body, time.Now())

	cases := map[string]struct {
		body   []byte
		header string
	}{
		"missing header":   {body, ""},
		"garbage header":   {body, "t=,v1=zz"},
		"wrong secret":     {body, NewCheckout("", "sk", "other", "").SignWebhook(body, time.Now())},
		"tampered body":    {[]byte(`{"id":"evt_1","type":"checkout.session.completed" }`), good},
		"signature swapped": {body, strings.Replace(good, "v1=", "v1=00", 1)},
	}
	for name, tc := range cases {
		if _, err := c.VerifyWebhook(tc.body, tc.header); !errors.Is(err, ErrBadSignature) {
			t.Errorf("%s: expected ErrBadSignature, got %v", name, err)
		}
	}
}
