package acs

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"time"
)

// Sign adds HMAC-SHA256 authentication headers to r. body must be the exact request body.
func Sign(r *http.Request, body []byte, key []byte, now time.Time) {
	contentHash := sha256.Sum256(body)
	contentHashB64 := base64.StdEncoding.EncodeToString(contentHash[:])
	date := now.UTC().Format(http.TimeFormat)

	stringToSign := r.Method + "\n" + r.URL.RequestURI() + "\n" + date + ";" + r.URL.Host + ";" + contentHashB64
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	r.Header.Set("x-ms-date", date)
	r.Header.Set("x-ms-content-sha256", contentHashB64)
	r.Header.Set("Authorization", "HMAC-SHA256 SignedHeaders=x-ms-date;host;x-ms-content-sha256&Signature="+signature)
}
