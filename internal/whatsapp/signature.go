package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// VerifySignature checks the provider's sha256=<hex-hmac> header over the
// exact raw request bytes against one shared secret.
func VerifySignature(rawBody []byte, signatureHeader, appSecret string) bool {
	if signatureHeader == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(rawBody)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}

// VerifySignatureAny returns true on the first candidate secret that matches.
// The candidate list exists because the owning tenant is not yet known when
// the signature must be checked.
func VerifySignatureAny(rawBody []byte, signatureHeader string, appSecrets []string) bool {
	for _, secret := range appSecrets {
		if secret != "" && VerifySignature(rawBody, signatureHeader, secret) {
			return true
		}
	}
	return false
}
