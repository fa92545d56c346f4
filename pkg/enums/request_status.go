package enums

import (
	"database/sql/driver"
	"fmt"
	"sort"
	"strings"
)

// RequestStatus is the canonical lifecycle state of a sourcing request.
type RequestStatus string

const (
	RequestStatusOpenForQuotes RequestStatus = "open_for_quotes"
	RequestStatusQuoteSelected RequestStatus = "quote_selected"
	RequestStatusOrdered       RequestStatus = "ordered"
	RequestStatusInProduction  RequestStatus = "in_production"
	RequestStatusInTransit     RequestStatus = "in_transit"
	RequestStatusDelivered     RequestStatus = "delivered"
	RequestStatusProblem       RequestStatus = "problem"
)

var validRequestStatuses = []RequestStatus{
	RequestStatusOpenForQuotes,
	RequestStatusQuoteSelected,
	RequestStatusOrdered,
	RequestStatusInProduction,
	RequestStatusInTransit,
	RequestStatusDelivered,
	RequestStatusProblem,
}

// legacyRequestStatuses maps values written by older clients onto the canonical set.
var legacyRequestStatuses = map[string]RequestStatus{
	"quote selected":  RequestStatusQuoteSelected,
	"open for quotes": RequestStatusOpenForQuotes,
	"open":            RequestStatusOpenForQuotes,
	"in production":   RequestStatusInProduction,
	"in transit":      RequestStatusInTransit,
	"shipped":         RequestStatusInTransit,
}

// String implements fmt.Stringer.
func (s RequestStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a canonical RequestStatus.
func (s RequestStatus) IsValid() bool {
	for _, candidate := range validRequestStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsProduction reports whether a request in this state has committed spend
// against its selected supplier quote.
func (s RequestStatus) IsProduction() bool {
	switch s {
	case RequestStatusOrdered, RequestStatusInProduction, RequestStatusInTransit,
		RequestStatusDelivered, RequestStatusProblem:
		return true
	}
	return false
}

// IsPostSelection reports whether a winner must exist for this state.
func (s RequestStatus) IsPostSelection() bool {
	return s == RequestStatusQuoteSelected || s.IsProduction()
}

// ParseRequestStatus converts raw input into a RequestStatus. Only canonical
// values are accepted.
func ParseRequestStatus(value string) (RequestStatus, error) {
	for _, candidate := range validRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid request status %q", value)
}

// NormalizeRequestStatus accepts canonical and legacy spellings.
func NormalizeRequestStatus(value string) (RequestStatus, error) {
	trimmed := strings.TrimSpace(value)
	if status, err := ParseRequestStatus(trimmed); err == nil {
		return status, nil
	}
	lowered := strings.ToLower(trimmed)
	if status, err := ParseRequestStatus(lowered); err == nil {
		return status, nil
	}
	if status, ok := legacyRequestStatuses[lowered]; ok {
		return status, nil
	}
	return "", fmt.Errorf("invalid request status %q", value)
}

// Scan implements sql.Scanner and normalizes legacy rows on read.
func (s *RequestStatus) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case nil:
		return fmt.Errorf("request status cannot be null")
	default:
		return fmt.Errorf("unsupported request status type %T", src)
	}
	status, err := NormalizeRequestStatus(raw)
	if err != nil {
		return err
	}
	*s = status
	return nil
}

// Value implements driver.Valuer; only canonical values are ever written.
func (s RequestStatus) Value() (driver.Value, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid request status %q", string(s))
	}
	return string(s), nil
}

// RequestStatusSpellings lists the lower-cased stored spellings that normalize
// to status, canonical first. Used to filter rows that predate normalization.
func RequestStatusSpellings(status RequestStatus) []string {
	out := []string{string(status)}
	for legacy, canonical := range legacyRequestStatuses {
		if canonical == status {
			out = append(out, legacy)
		}
	}
	sort.Strings(out[1:])
	return out
}
