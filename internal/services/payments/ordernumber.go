package payments

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"time"
)

const orderSuffixAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// OrderNumberPattern matches numbers produced by NewOrderNumber.
var OrderNumberPattern = regexp.MustCompile(`^ORD-\d{4}-[A-Z0-9]{6}$`)

// NewOrderNumber returns a display label of the form ORD-<year>-<6 chars>.
// It is unique by convention only and is not tied to any stored order.
func NewOrderNumber(now time.Time) string {
	suffix := make([]byte, 6)
	max := big.NewInt(int64(len(orderSuffixAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand: " + err.Error())
		}
		suffix[i] = orderSuffixAlphabet[n.Int64()]
	}

	return fmt.Sprintf("ORD-%04d-%s", now.Year(), suffix)
}
