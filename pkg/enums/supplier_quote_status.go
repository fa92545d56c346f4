package enums

import "fmt"

// SupplierQuoteStatus tracks a bid from submission to decision.
type SupplierQuoteStatus string

const (
	SupplierQuoteStatusPending  SupplierQuoteStatus = "pending"
	SupplierQuoteStatusSelected SupplierQuoteStatus = "selected"
	SupplierQuoteStatusRejected SupplierQuoteStatus = "rejected"
)

var validSupplierQuoteStatuses = []SupplierQuoteStatus{
	SupplierQuoteStatusPending,
	SupplierQuoteStatusSelected,
	SupplierQuoteStatusRejected,
}

// String implements fmt.Stringer.
func (s SupplierQuoteStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SupplierQuoteStatus.
func (s SupplierQuoteStatus) IsValid() bool {
	for _, candidate := range validSupplierQuoteStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSupplierQuoteStatus converts raw input into a SupplierQuoteStatus.
func ParseSupplierQuoteStatus(value string) (SupplierQuoteStatus, error) {
	for _, candidate := range validSupplierQuoteStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid supplier quote status %q", value)
}
