package security

import (
	"golang.org/x/crypto/bcrypt"
)

// ScannerKeyGuard authorizes dedicated gate hardware that carries a shared
// device key instead of a user session. Only the bcrypt hash of the key is
// ever configured on the server.
type ScannerKeyGuard struct {
	hash []byte
}

func NewScannerKeyGuard(hash string) *ScannerKeyGuard {
	return &ScannerKeyGuard{hash: []byte(hash)}
}

// Verify reports whether the presented key matches the configured hash. An
// empty configuration disables device-key access entirely.
func (g *ScannerKeyGuard) Verify(key string) bool {
	if len(g.hash) == 0 || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(g.hash, []byte(key)) == nil
}
