package ticketing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Konfhub-Signature"

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks signature against the raw payload.  With no
// secret configured the result depends on AllowUnsigned: true accepts every
// webhook (the provider's historical development behavior), false rejects
// every webhook.
func (c *Client) VerifyWebhookSignature(payload []byte, signature string) bool {
	if len(c.webhookSecret) == 0 {
		if c.allowUnsigned {
			c.log.Warn("konfhub webhook secret not configured; accepting unsigned webhook")
			return true
		}
		c.log.Error("konfhub webhook secret not configured; rejecting webhook")
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(strings.TrimPrefix(signature, "sha256=")))
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, c.webhookSecret)
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}

// ParseWebhook decodes a webhook body.
func ParseWebhook(payload []byte) (WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ev, fmt.Errorf("decode webhook: %w", err)
	}
	return ev, nil
}
