package mexc

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// signBucket groups timestamps into 30s windows. The intermediate key is
// derived from the bucket, then the request payload is signed with that
// key; both digests are HMAC-SHA256, hex-encoded.
const signBucket = 30 * time.Second

// Signer implements the contract-API double-HMAC scheme with
// ApiKey/Request-Time/Signature headers.
type Signer struct {
	apiKey    string
	secretKey []byte
}

func NewSigner(apiKey, secretKey string) *Signer {
	return &Signer{apiKey: apiKey, secretKey: []byte(secretKey)}
}

// Sign authenticates one REST request. The canonical payload is the sorted
// query string for GET/DELETE and the JSON body otherwise.
func (s *Signer) Sign(method, path, rawQuery, body string, ts time.Time) map[string]string {
	canonical := body
	if method == "GET" || method == "DELETE" {
		canonical = rawQuery
	}
	timestamp := strconv.FormatInt(ts.UnixMilli(), 10)

	return map[string]string{
		"ApiKey":       s.apiKey,
		"Request-Time": timestamp,
		"Signature":    s.signature(ts, timestamp+canonical),
	}
}

// WSLoginSign produces the reqTime/signature pair of the WS login payload.
func (s *Signer) WSLoginSign(ts time.Time) (reqTime, sign string) {
	reqTime = strconv.FormatInt(ts.UnixMilli(), 10)
	return reqTime, s.signature(ts, reqTime)
}

func (s *Signer) APIKey() string { return s.apiKey }

func (s *Signer) signature(ts time.Time, payload string) string {
	bucket := strconv.FormatInt(ts.UnixMilli()/signBucket.Milliseconds(), 10)

	inner := hmac.New(sha256.New, s.secretKey)
	inner.Write([]byte(bucket))
	derived := inner.Sum(nil)

	outer := hmac.New(sha256.New, derived)
	outer.Write([]byte(s.apiKey + payload))
	return hex.EncodeToString(outer.Sum(nil))
}
