package bitget

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// Signer implements Bitget V2 authentication: base64 HMAC-SHA256 over
// timestamp + METHOD + path + "?" + query + body, with millisecond
// timestamps.
type Signer struct {
	accessKey  string
	secretKey  []byte
	passphrase string
}

func NewSigner(accessKey, secretKey, passphrase string) *Signer {
	return &Signer{
		accessKey:  accessKey,
		secretKey:  []byte(secretKey),
		passphrase: passphrase,
	}
}

func (s *Signer) Sign(method, path, rawQuery, body string, ts time.Time) map[string]string {
	timestamp := strconv.FormatInt(ts.UnixMilli(), 10)

	prehash := timestamp + method + path
	if rawQuery != "" {
		prehash += "?" + rawQuery
	}
	prehash += body

	return map[string]string{
		"ACCESS-KEY":        s.accessKey,
		"ACCESS-SIGN":       s.hmacBase64(prehash),
		"ACCESS-TIMESTAMP":  timestamp,
		"ACCESS-PASSPHRASE": s.passphrase,
		"locale":            "en-US",
	}
}

// WSLoginSign signs the WebSocket login payload: second-resolution
// timestamp over the fixed GET /user/verify prehash.
func (s *Signer) WSLoginSign(ts time.Time) (timestamp, sign string) {
	timestamp = strconv.FormatInt(ts.Unix(), 10)
	return timestamp, s.hmacBase64(timestamp + "GET" + "/user/verify")
}

func (s *Signer) AccessKey() string  { return s.accessKey }
func (s *Signer) Passphrase() string { return s.passphrase }

func (s *Signer) hmacBase64(payload string) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
