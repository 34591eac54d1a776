package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignWebhook produces "<provider>_sig_<hex hmac-sha256>" for payload.
func SignWebhook(provider, secret string, payload []byte) string {
	return provider + "_sig_" + hex.EncodeToString(webhookMAC(secret, payload))
}

// VerifyWebhookSignature checks a signature produced by SignWebhook. With an
// empty secret only the provider prefix is checked.
func VerifyWebhookSignature(provider, secret, signature string, payload []byte) bool {
	prefix := provider + "_sig_"
	if !strings.HasPrefix(signature, prefix) {
		return false
	}
	if secret == "" {
		return true
	}
	got, err := hex.DecodeString(strings.TrimPrefix(signature, prefix))
	if err != nil {
		return false
	}
	return hmac.Equal(got, webhookMAC(secret, payload))
}

func webhookMAC(secret string, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}
