package requests

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/angelmondragon/sourcing-engine/pkg/enums"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ComponentInput describes one part the client needs priced.
type ComponentInput struct {
	Reference   string
	Description *string
	Quantity    int
}

// CreateInput registers a new request.
type CreateInput struct {
	ClientEmail     string
	ClientCompanyID *uuid.UUID
	Spec            json.RawMessage
	Components      []ComponentInput
	DocumentURLs    []string
	Actor           string
}

// TransitionInput moves a request to another status. Reason is mandatory when
// entering problem. Carrier and TrackingNumber are applied with the move when set.
type TransitionInput struct {
	RequestID      uuid.UUID
	To             enums.RequestStatus
	Actor          string
	Reason         string
	Carrier        *string
	TrackingNumber *string
}

// ListFilter narrows List results.
type ListFilter struct {
	Status      *enums.RequestStatus
	ClientEmail string
	Limit       int
	Offset      int
}

func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Dependents counts records outside the request aggregate that point at a
// request. A request with dependents cannot be deleted.
type Dependents struct {
	Purchases    int64
	ClientQuotes int64
}

func (d Dependents) Any() bool {
	return d.Purchases > 0 || d.ClientQuotes > 0
}
