package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrBadSignature is returned when a callback fails its authenticity check.
// Callers must not apply any state change for such callbacks.
var ErrBadSignature = errors.New("provider: signature verification failed")

// SignatureHeader is the header the card processor signs its webhooks with.
const SignatureHeader = "Checkout-Signature"

// EventSessionCompleted is the webhook event type that confirms payment.
const EventSessionCompleted = "checkout.session.completed"

// Session is a provider-hosted payment page for one purchase.
type Session struct {
	ID  string
	URL string
}

// Event is a verified checkout webhook event. Raw holds the exact payload
// bytes for the purchase audit trail.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string            `json:"id"`
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
	Raw json.RawMessage `json:"-"`
}

// PurchaseID returns the correlation token embedded in session metadata at
// intake time, or "" when absent.
func (e Event) PurchaseID() string {
	return e.Data.Object.Metadata["purchaseId"]
}

// Checkout talks to the card processor. Secrets are injected by the
// bootstrap; the zero value is unusable.
type Checkout struct {
	apiBase       string
	secretKey     string
	webhookSecret string
	publicBaseURL string
	client        *http.Client
}

func NewCheckout(apiBase, secretKey, webhookSecret, publicBaseURL string) *Checkout {
	return &Checkout{
		apiBase:       strings.TrimRight(apiBase, "/"),
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		client:        &http.Client{Timeout: 15 * time.Second},
	}
}

// CreateSession opens a hosted checkout session for the given amount. The
// purchase id rides along in session metadata so the completion webhook can
// be mapped back to the local record.
func (c *Checkout) CreateSession(ctx context.Context, amountUSD float64, purchaseID, planName string) (Session, error) {
	form := url.Values{
		"mode":                    {"payment"},
		"payment_method_types[]":  {"card"},
		"line_items[0][name]":     {planName},
		"line_items[0][amount]":   {strconv.FormatInt(int64(amountUSD*100+0.5), 10)},
		"line_items[0][currency]": {"usd"},
		"success_url":             {c.publicBaseURL + "/success?session_id={CHECKOUT_SESSION_ID}"},
		"cancel_url":              {c.publicBaseURL + "/cancel"},
		"metadata[purchaseId]":    {purchaseID},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return Session{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("checkout: create session: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Session{}, fmt.Errorf("checkout: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Session{}, fmt.Errorf("checkout: create session: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return Session{}, fmt.Errorf("checkout: decode response: %w", err)
	}
	if out.ID == "" || out.URL == "" {
		return Session{}, errors.New("checkout: response missing session id or url")
	}
	return Session{ID: out.ID, URL: out.URL}, nil
}

// VerifyWebhook checks the processor's signature over the exact raw body and
// decodes the event. The header format is "t=<unix>,v1=<hex>", with the HMAC
// computed over "<t>.<body>" using the webhook secret.
func (c *Checkout) VerifyWebhook(rawBody []byte, sigHeader string) (Event, error) {
	ts, sig, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return Event{}, err
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	if !hmac.Equal(mac.Sum(nil), sig) {
		return Event{}, ErrBadSignature
	}

	var ev Event
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return Event{}, fmt.Errorf("checkout: decode event: %w", err)
	}
	ev.Raw = json.RawMessage(append([]byte(nil), rawBody...))
	return ev, nil
}

// SignWebhook produces a valid signature header for rawBody. Used to build
// callbacks in tests.
func (c *Checkout) SignWebhook(rawBody []byte, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(header string) (ts string, sig []byte, err error) {
	if header == "" {
		return "", nil, ErrBadSignature
	}
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sig, err = hex.DecodeString(v)
			if err != nil {
				return "", nil, ErrBadSignature
			}
		}
	}
	if ts == "" || len(sig) == 0 {
		return "", nil, ErrBadSignature
	}
	return ts, sig, nil
}
