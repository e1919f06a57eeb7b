package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Signer holds the credentials for SIGNED endpoints.
type Signer struct {
	Key    string
	Secret string
}

// Sign adds timestamp and recvWindow to params and returns the encoded query
// with the HMAC-SHA256 signature appended. The signature covers the query
// exactly as sent.
func (s *Signer) Sign(params url.Values, ts time.Time, recvWindow int) string {
	params.Set("timestamp", strconv.FormatInt(ts.UnixMilli(), 10))
	if recvWindow > 0 {
		params.Set("recvWindow", strconv.Itoa(recvWindow))
	}
	query := params.Encode()
	return query + "&signature=" + hmacSHA256Hex([]byte(s.Secret), query)
}

// hmacSHA256Hex computes HMAC-SHA256 of message using key and returns it as
// lowercase hex.
func hmacSHA256Hex(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (s *Signer) String() string {
	redact := func(v string) string {
		if len(v) <= 4 {
			return "****"
		}
		return v[:4] + "****"
	}
	return fmt.Sprintf("Signer{key=%s, secret=%s}", redact(s.Key), redact(s.Secret))
}
