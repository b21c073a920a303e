package crypto

import (
	"crypto/sha256"
	"encoding/base64"
)

// HashToken produces the denylist key for a bearer token so the raw token is
// never stored server-side.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
