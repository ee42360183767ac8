// internal/registry/codes.go
package registry

import (
	"crypto/rand"

	"github.com/jswain/spyfall-service/internal/sanitize"
)

// codeAlphabet omits ambiguous characters (I, O, 0, 1) so codes survive
// being read out loud. Validation still accepts the full alphanumeric set.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// randomCode draws a fixed-length room code from a cryptographically random
// source. Uniqueness is the registry's job, not the generator's.
func randomCode() string {
	b := make([]byte, sanitize.RoomCodeLen)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b)
}
