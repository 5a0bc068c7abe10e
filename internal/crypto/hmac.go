package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// SignData computes a base64 URL-encoded HMAC-SHA256 signature over data
func SignData(data string, signingKey []byte) string {
	mac := hmac.New(sha256.New, signingKey)
	mac.Write([]byte(data))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

// ValidateSignedData checks a signature produced by SignData in constant time
func ValidateSignedData(data, signature string, signingKey []byte) bool {
	expected, err := base64.URLEncoding.DecodeString(SignData(data, signingKey))
	if err != nil {
		return false
	}
	got, err := base64.URLEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}
