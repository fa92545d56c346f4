package enums

import "fmt"

// LedgerEntityType names the kind of entity an audit entry belongs to.
type LedgerEntityType string

const (
	LedgerEntityRequest       LedgerEntityType = "request"
	LedgerEntitySupplierQuote LedgerEntityType = "supplier_quote"
	LedgerEntityClientQuote   LedgerEntityType = "client_quote"
)

var validLedgerEntityTypes = []LedgerEntityType{
	LedgerEntityRequest,
	LedgerEntitySupplierQuote,
	LedgerEntityClientQuote,
}

// String implements fmt.Stringer.
func (t LedgerEntityType) String() string {
	return string(t)
}

// IsValid reports whether the value matches a known ledger entity type.
func (t LedgerEntityType) IsValid() bool {
	for _, candidate := range validLedgerEntityTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLedgerEntityType converts raw input into a LedgerEntityType.
func ParseLedgerEntityType(value string) (LedgerEntityType, error) {
	for _, candidate := range validLedgerEntityTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entity type %q", value)
}
