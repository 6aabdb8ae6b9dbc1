package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
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

// HMACHeader carries the crypto processor's HMAC-SHA512 of the request body.
const HMACHeader = "HMAC"

// Transaction is a crypto payment created at the processor. StatusURL is the
// hosted page the buyer is redirected to.
type Transaction struct {
	ID        string
	StatusURL string
}

// CoinPay integrates the cryptocurrency payment processor. Outbound API
// calls and inbound IPNs are both authenticated with HMAC-SHA512 over the
// form-encoded body using the account's private key.
type CoinPay struct {
	apiBase       string
	publicKey     string
	privateKey    string
	publicBaseURL string
	client        *http.Client
}

func NewCoinPay(apiBase, publicKey, privateKey, publicBaseURL string) *CoinPay {
	return &CoinPay{
		apiBase:       strings.TrimRight(apiBase, "/"),
		publicKey:     publicKey,
		privateKey:    privateKey,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		client:        &http.Client{Timeout: 15 * time.Second},
	}
}

// CreateTransaction asks the processor for a new USD->BTC payment. The
// purchase id is passed through the opaque "custom" field and echoed back in
// every IPN for correlation.
func (c *CoinPay) CreateTransaction(ctx context.Context, amountUSD float64, purchaseID, buyerEmail string) (Transaction, error) {
	form := url.Values{
		"version":     {"1"},
		"cmd":         {"create_transaction"},
		"key":         {c.publicKey},
		"amount":      {strconv.FormatFloat(amountUSD, 'f', 2, 64)},
		"currency1":   {"USD"},
		"currency2":   {"BTC"},
		"buyer_email": {buyerEmail},
		"custom":      {purchaseID},
		"ipn_url":     {c.publicBaseURL + "/ipn/coinpay"},
	}
	encoded := form.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/api.php", strings.NewReader(encoded))
	if err != nil {
		return Transaction{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(HMACHeader, c.Sign([]byte(encoded)))

	resp, err := c.client.Do(req)
	if err != nil {
		return Transaction{}, fmt.Errorf("coinpay: create transaction: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Transaction{}, fmt.Errorf("coinpay: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Transaction{}, fmt.Errorf("coinpay: create transaction: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		Error  string `json:"error"`
		Result struct {
			TxnID     string `json:"txn_id"`
			StatusURL string `json:"status_url"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return Transaction{}, fmt.Errorf("coinpay: decode response: %w", err)
	}
	if out.Error != "" && out.Error != "ok" {
		return Transaction{}, fmt.Errorf("coinpay: create transaction: %s", out.Error)
	}
	if out.Result.TxnID == "" || out.Result.StatusURL == "" {
		return Transaction{}, errors.New("coinpay: response missing txn_id or status_url")
	}
	return Transaction{ID: out.Result.TxnID, StatusURL: out.Result.StatusURL}, nil
}

// VerifyIPN recomputes the HMAC-SHA512 over the exact raw body and compares
// it to the header value. On success the body is parsed as form fields.
func (c *CoinPay) VerifyIPN(rawBody []byte, hmacHeader string) (url.Values, error) {
	if hmacHeader == "" {
		return nil, ErrBadSignature
	}
	got, err := hex.DecodeString(hmacHeader)
	if err != nil {
		return nil, ErrBadSignature
	}
	mac := hmac.New(sha512.New, []byte(c.privateKey))
	mac.Write(rawBody)
	if !hmac.Equal(mac.Sum(nil), got) {
		return nil, ErrBadSignature
	}

	fields, err := url.ParseQuery(string(rawBody))
	if err != nil {
		return nil, fmt.Errorf("coinpay: parse ipn body: %w", err)
	}
	return fields, nil
}

// Sign returns the hex HMAC-SHA512 of body under the private key.
func (c *CoinPay) Sign(body []byte) string {
	mac := hmac.New(sha512.New, []byte(c.privateKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// StatusComplete reports whether an IPN status value means the payment is
// fully confirmed. Per the processor's docs, >= 100 or exactly 2 is complete;
// everything else is an intermediate update.
func StatusComplete(status int) bool {
	return status >= 100 || status == 2
}
