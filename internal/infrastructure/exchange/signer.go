package exchange

import "time"

// Signer produces the authentication headers for one private REST request.
// Each exchange ships its own implementation (prehash layout, digest
// encoding, header names); the transport treats signing as opaque.
type Signer interface {
	Sign(method, path, rawQuery, body string, ts time.Time) map[string]string
}
