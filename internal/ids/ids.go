package ids

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns a system-generated identifier.
func NewID() string {
	return uuid.NewString()
}

// NewReference generates a business-facing reference number with the given
// prefix, e.g. "TXN-20260829-K3F9Q2M7XA".
func NewReference(prefix string) string {
	const charset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	const length = 10

	b := make([]byte, length)
	for i := range b {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		b[i] = charset[n.Int64()]
	}
	return fmt.Sprintf("%s-%s-%s", strings.ToUpper(prefix), time.Now().UTC().Format("20060102"), string(b))
}
