package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/ordermesh/api/internal/platform/textutil"
)

// Payload carries every order-determining field. Two requests with the same
// payload are the same order attempt regardless of retry timing or cosmetic
// formatting differences.
type Payload struct {
	StoreID       string
	CustomerID    string
	PaymentMethod string
	Lines         []Line
	Address       Address
}

// Line identifies one cart line for fingerprinting purposes.
type Line struct {
	ResellerProductID string
	VariantID         string
	Quantity          int
}

// Address carries the shipping address fields included in the fingerprint.
type Address struct {
	Recipient  string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Fingerprint computes the deterministic SHA-256 fingerprint of a payload.
// Lines are sorted so client-side ordering does not change the hash, and
// textual fields are canonicalised before encoding.
func Fingerprint(p Payload) string {
	lines := make([]Line, len(p.Lines))
	copy(lines, p.Lines)
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].ResellerProductID != lines[j].ResellerProductID {
			return lines[i].ResellerProductID < lines[j].ResellerProductID
		}
		return lines[i].VariantID < lines[j].VariantID
	})

	var b strings.Builder
	writeField(&b, "store", strings.TrimSpace(p.StoreID))
	writeField(&b, "customer", strings.TrimSpace(p.CustomerID))
	writeField(&b, "payment", textutil.NormalizeCode(p.PaymentMethod))
	for _, line := range lines {
		writeField(&b, "line", fmt.Sprintf("%s|%s|%d",
			strings.TrimSpace(line.ResellerProductID),
			strings.TrimSpace(line.VariantID),
			line.Quantity,
		))
	}
	writeField(&b, "recipient", textutil.CanonicalText(p.Address.Recipient))
	writeField(&b, "line1", textutil.CanonicalText(p.Address.Line1))
	writeField(&b, "line2", textutil.CanonicalText(p.Address.Line2))
	writeField(&b, "city", textutil.CanonicalText(p.Address.City))
	writeField(&b, "state", textutil.CanonicalText(p.Address.State))
	writeField(&b, "postal", textutil.NormalizeCode(p.Address.PostalCode))
	writeField(&b, "country", textutil.NormalizeCode(p.Address.Country))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeField(b *strings.Builder, name, value string) {
	b.WriteString(name)
	b.WriteByte('=')
	b.WriteString(value)
	b.WriteByte('\n')
}
