package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EventCheckoutCompleted is the webhook event that confirms a deposit.
const EventCheckoutCompleted = "checkout.session.completed"

// DefaultTolerance bounds the age of a signed webhook.
const DefaultTolerance = 5 * time.Minute

// WebhookEvent is a processor webhook envelope
type WebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object CheckoutSession `json:"object"`
	} `json:"data"`
}

// VerifySignature validates a "t=<unix>,v1=<hex hmac>" header over
// "<t>.<payload>" and rejects timestamps outside tolerance.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if secret == "" || header == "" {
		return ErrInvalidSignature
	}

	var (
		ts         int64
		signatures []string
	)
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			n, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return ErrInvalidSignature
			}
			ts = n
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if ts == 0 || len(signatures) == 0 {
		return ErrInvalidSignature
	}

	if tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age > tolerance || age < -tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
		}
	}

	expected := sign(payload, ts, secret)
	for _, sig := range signatures {
		given, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(given, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// GenerateSignatureHeader creates a signature header for testing
func GenerateSignatureHeader(payload []byte, secret string, ts time.Time) string {
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(sign(payload, ts.Unix(), secret)))
}

func sign(payload []byte, ts int64, secret string) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(strconv.FormatInt(ts, 10)))
	h.Write([]byte("."))
	h.Write(payload)
	return h.Sum(nil)
}

// ParseWebhook decodes a verified webhook payload
func ParseWebhook(payload []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("failed to parse webhook: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("failed to parse webhook: missing type")
	}
	return &ev, nil
}
