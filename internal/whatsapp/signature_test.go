package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"entry":[]}`)

	require.True(t, VerifySignature(body, sign(body, "secret-a"), "secret-a"))
	require.False(t, VerifySignature(body, sign(body, "secret-a"), "secret-b"))
	require.False(t, VerifySignature(body, "", "secret-a"))
	require.False(t, VerifySignature(body, "sha256=deadbeef", "secret-a"))

	// Any altered byte invalidates the signature.
	tampered := []byte(`{"entry":[{}]}`)
	require.False(t, VerifySignature(tampered, sign(body, "secret-a"), "secret-a"))
}

func TestVerifySignatureAny(t *testing.T) {
	body := []byte(`{"entry":[]}`)
	header := sign(body, "tenant-secret")

	require.True(t, VerifySignatureAny(body, header, []string{"fallback", "tenant-secret"}))
	require.False(t, VerifySignatureAny(body, header, []string{"fallback", "other"}))
	require.False(t, VerifySignatureAny(body, header, nil))

	// Empty candidate secrets are skipped, never matched.
	require.False(t, VerifySignatureAny(body, sign(body, ""), []string{""}))
}
