package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// SignatureWindow bounds how far a signed tracking timestamp may drift from
// server time, in either direction. Privacy-focused browsers strip Origin
// and Referer headers, so signed payloads are the fallback credential for
// anonymous visitors.
const SignatureWindow = 6 * time.Hour

// MakeSignature computes the hex HMAC-SHA256 tag over "contentRef|ts".
func MakeSignature(contentRef string, ts int64, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s|%d", contentRef, ts)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether sig is a valid tag for contentRef at ts,
// with ts inside the drift window around now.
func VerifySignature(contentRef string, ts int64, sig string, secret []byte, now time.Time) bool {
	if len(secret) == 0 || ts <= 0 || sig == "" {
		return false
	}
	drift := now.Unix() - ts
	if drift < 0 {
		drift = -drift
	}
	if drift >= int64(SignatureWindow/time.Second) {
		return false
	}
	expected := MakeSignature(contentRef, ts, secret)
	return hmac.Equal([]byte(expected), []byte(sig))
}
