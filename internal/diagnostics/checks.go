package diagnostics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/sourcing-engine/internal/rollup"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
)

const (
	CheckOrphanSupplierQuotes    = "orphan_supplier_quotes"
	CheckOrphanLineItems         = "orphan_line_items"
	CheckOrphanClientQuotes      = "orphan_client_quotes"
	CheckOrphanPurchases         = "orphan_purchases"
	CheckLineItemComponents      = "line_item_components"
	CheckMissingLineItems        = "missing_line_items"
	CheckMissingDocumentation    = "missing_documentation"
	CheckProductionConsistency   = "production_consistency"
	CheckBidTotalDrift           = "bid_total_drift"
	CheckClientQuoteCompleteness = "client_quote_completeness"
	CheckLedgerOrdering          = "ledger_ordering"
	CheckRequestStatusVocabulary = "request_status_vocabulary"
)

const (
	entityRequest       = "request"
	entitySupplierQuote = "supplier_quote"
	entityLineItem      = "quote_line_item"
	entityClientQuote   = "client_quote"
	entityPurchase      = "purchase"
)

type check struct {
	name        string
	description string
	run         func(ix *index, at time.Time) []Finding
}

var checks = []check{
	{CheckOrphanSupplierQuotes, "supplier quotes without a request", orphanSupplierQuotes},
	{CheckOrphanLineItems, "line items without a supplier quote", orphanLineItems},
	{CheckOrphanClientQuotes, "client quotes without a company", orphanClientQuotes},
	{CheckOrphanPurchases, "purchases without a request", orphanPurchases},
	{CheckLineItemComponents, "line items pricing components of another request", lineItemComponents},
	{CheckMissingLineItems, "supplier quotes without line items", missingLineItems},
	{CheckMissingDocumentation, "ordered requests missing documents or tracking", missingDocumentation},
	{CheckProductionConsistency, "winner count per request", productionConsistency},
	{CheckBidTotalDrift, "frozen bid totals against landed cost", bidTotalDrift},
	{CheckClientQuoteCompleteness, "client quotes missing items or numbers", clientQuoteCompleteness},
	{CheckLedgerOrdering, "audit trail timestamp order", ledgerOrdering},
	{CheckRequestStatusVocabulary, "request status spellings", requestStatusVocabulary},
}

// CheckNames lists every check in report order.
func CheckNames() []string {
	names := make([]string, 0, len(checks))
	for _, c := range checks {
		names = append(names, c.name)
	}
	return names
}

// Evaluate runs every check over snap. It is pure; at is the report time.
func Evaluate(snap *Snapshot, at time.Time) *Report {
	ix := newIndex(snap)
	results := make([]CheckResult, 0, len(checks))
	for _, c := range checks {
		results = append(results, newResult(c.name, c.description, c.run(ix, at)))
	}
	return &Report{Status: Aggregate(results), GeneratedAt: at, Checks: results}
}

type requestView struct {
	row       RequestRow
	status    enums.RequestStatus
	canonical bool
	known     bool
}

type index struct {
	snap            *Snapshot
	requests        map[uuid.UUID]*requestView
	quotes          map[uuid.UUID]int
	componentOwner  map[uuid.UUID]uuid.UUID
	lineItemCount   map[uuid.UUID]int
	selectedCount   map[uuid.UUID]int
	companies       map[uuid.UUID]struct{}
	clientItemCount map[uuid.UUID]int
}

func newIndex(snap *Snapshot) *index {
	ix := &index{
		snap:            snap,
		requests:        make(map[uuid.UUID]*requestView, len(snap.Requests)),
		quotes:          make(map[uuid.UUID]int, len(snap.Quotes)),
		componentOwner:  make(map[uuid.UUID]uuid.UUID, len(snap.Components)),
		lineItemCount:   map[uuid.UUID]int{},
		selectedCount:   map[uuid.UUID]int{},
		companies:       make(map[uuid.UUID]struct{}, len(snap.CompanyIDs)),
		clientItemCount: map[uuid.UUID]int{},
	}
	for _, row := range snap.Requests {
		view := &requestView{row: row}
		if status, err := enums.NormalizeRequestStatus(row.Status); err == nil {
			view.status = status
			view.known = true
			view.canonical = string(status) == row.Status
		}
		ix.requests[row.ID] = view
	}
	for i, q := range snap.Quotes {
		ix.quotes[q.ID] = i
		if q.Status == enums.SupplierQuoteStatusSelected {
			ix.selectedCount[q.RequestID]++
		}
	}
	for _, c := range snap.Components {
		ix.componentOwner[c.ID] = c.RequestID
	}
	for _, li := range snap.LineItems {
		ix.lineItemCount[li.QuoteID]++
	}
	for _, id := range snap.CompanyIDs {
		ix.companies[id] = struct{}{}
	}
	for _, item := range snap.ClientQuoteItems {
		ix.clientItemCount[item.ClientQuoteID]++
	}
	return ix
}

func orphanSupplierQuotes(ix *index, _ time.Time) []Finding {
	var out []Finding
	for _, q := range ix.snap.Quotes {
		if _, ok := ix.requests[q.RequestID]; !ok {
			out = append(out, fail(entitySupplierQuote, q.ID, "request %s does not exist", q.RequestID))
		}
	}
	return out
}

func orphanLineItems(ix *index, _ time.Time) []Finding {
	var out []Finding
	for _, li := range ix.snap.LineItems {
		if _, ok := ix.quotes[li.QuoteID]; !ok {
			out = append(out, fail(entityLineItem, li.ID, "supplier quote %s does not exist", li.QuoteID))
		}
	}
	return out
}

func orphanClientQuotes(ix *index, _ time.Time) []Finding {
	var out []Finding
	for _, cq := range ix.snap.ClientQuotes {
		if _, ok := ix.companies[cq.ClientCompanyID]; !ok {
			out = append(out, fail(entityClientQuote, cq.ID, "company %s does not exist", cq.ClientCompanyID))
		}
	}
	return out
}

func orphanPurchases(ix *index, _ time.Time) []Finding {
	var out []Finding
	for _, p := range ix.snap.Purchases {
		if _, ok := ix.requests[p.RequestID]; !ok {
			out = append(out, warn(entityPurchase, p.ID, "request %s does not exist", p.RequestID))
		}
	}
	return out
}

func lineItemComponents(ix *index, _ time.Time) []Finding {
	var out []Finding
	for _, li := range ix.snap.LineItems {
		qi, ok := ix.quotes[li.QuoteID]
		if !ok {
			continue
		}
		quote := ix.snap.Quotes[qi]
		owner, ok := ix.componentOwner[li.ComponentID]
		switch {
		case !ok:
			out = append(out, warn(entityLineItem, li.ID, "component %s does not exist", li.ComponentID))
		case owner != quote.RequestID:
			out = append(out, warn(entityLineItem, li.ID, "component %s belongs to request %s, not %s", li.ComponentID, owner, quote.RequestID))
		}
	}
	return out
}

func missingLineItems(ix *index, _ time.Time) []Finding {
	var out []Finding
	for _, q := range ix.snap.Quotes {
		if ix.lineItemCount[q.ID] == 0 {
			out = append(out, warn(entitySupplierQuote, q.ID, "quote from %s has no line items", q.Bidder))
		}
	}
	return out
}

func missingDocumentation(ix *index, _ time.Time) []Finding {
	var out []Finding
	for _, id := range requestIDs(ix) {
		r := ix.requests[id]
		if !r.known || !r.status.IsProduction() {
			continue
		}
		if len(r.row.DocumentURLs) == 0 {
			out = append(out, warn(entityRequest, id, "request is %s without documents", r.status))
		}
		if (r.status == enums.RequestStatusInTransit || r.status == enums.RequestStatusDelivered) &&
			(r.row.TrackingNumber == nil || strings.TrimSpace(*r.row.TrackingNumber) == "") {
			out = append(out, warn(entityRequest, id, "request is %s without a tracking number", r.status))
		}
	}
	return out
}

func productionConsistency(ix *index, _ time.Time) []Finding {
	var out []Finding
	for _, id := range requestIDs(ix) {
		r := ix.requests[id]
		selected := ix.selectedCount[id]
		switch {
		case selected > 1:
			out = append(out, fail(entityRequest, id, "%d supplier quotes are selected", selected))
		case !r.known:
		case r.status.IsPostSelection() && selected == 0:
			out = append(out, warn(entityRequest, id, "request is %s but no supplier quote is selected", r.status))
		case r.status == enums.RequestStatusOpenForQuotes && selected == 1:
			out = append(out, warn(entityRequest, id, "request is open for quotes but a supplier quote is selected"))
		}
	}
	return out
}

func bidTotalDrift(ix *index, _ time.Time) []Finding {
	var out []Finding
	for i := range ix.snap.Quotes {
		q := &ix.snap.Quotes[i]
		landed := rollup.LandedCost(q)
		frozen := rollup.FrozenTotal(q)
		if !landed.Equal(frozen) {
			out = append(out, warn(entitySupplierQuote, q.ID, "frozen total %s differs from landed cost %s", frozen.Display(), landed.Display()))
		}
	}
	return out
}

func clientQuoteCompleteness(ix *index, _ time.Time) []Finding {
	var out []Finding
	for _, cq := range ix.snap.ClientQuotes {
		if cq.Status == enums.ClientQuoteStatusDraft {
			continue
		}
		if ix.clientItemCount[cq.ID] == 0 {
			out = append(out, warn(entityClientQuote, cq.ID, "%s quote has no items", cq.Status))
		}
		if strings.TrimSpace(cq.QuoteNumber) == "" {
			out = append(out, warn(entityClientQuote, cq.ID, "%s quote has no quote number", cq.Status))
		}
		if cq.Status == enums.ClientQuoteStatusInvoiced && (cq.InvoiceNumber == nil || strings.TrimSpace(*cq.InvoiceNumber) == "") {
			out = append(out, warn(entityClientQuote, cq.ID, "invoiced quote has no invoice number"))
		}
	}
	return out
}

// ledgerOrdering flags entries that share a timestamp with a sibling of the
// same entity, since appends are strictly increasing, and entries stamped
// after the report time.
func ledgerOrdering(ix *index, at time.Time) []Finding {
	var out []Finding
	type key struct {
		entityType enums.LedgerEntityType
		id         uuid.UUID
	}
	last := map[key]time.Time{}
	entries := append(ix.snap.Ledger[:0:0], ix.snap.Ledger...)
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].EntityID != entries[j].EntityID {
			return entries[i].EntityID.String() < entries[j].EntityID.String()
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	for _, e := range entries {
		k := key{entityType: e.EntityType, id: e.EntityID}
		if prev, ok := last[k]; ok && !e.CreatedAt.After(prev) {
			out = append(out, warn(string(e.EntityType), e.EntityID, "ledger entry %s shares timestamp %s with an earlier entry", e.ID, e.CreatedAt.Format(time.RFC3339Nano)))
		}
		if !at.IsZero() && e.CreatedAt.After(at) {
			out = append(out, warn(string(e.EntityType), e.EntityID, "ledger entry %s is stamped in the future", e.ID))
		}
		last[k] = e.CreatedAt
	}
	return out
}

func requestStatusVocabulary(ix *index, _ time.Time) []Finding {
	var out []Finding
	for _, id := range requestIDs(ix) {
		r := ix.requests[id]
		switch {
		case !r.known:
			out = append(out, fail(entityRequest, id, "status %q is not a request status", r.row.Status))
		case !r.canonical:
			out = append(out, warn(entityRequest, id, "legacy status %q reads as %s", r.row.Status, r.status))
		}
	}
	return out
}

func requestIDs(ix *index) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(ix.requests))
	for _, row := range ix.snap.Requests {
		ids = append(ids, row.ID)
	}
	return ids
}

func warn(entity string, id uuid.UUID, format string, args ...any) Finding {
	return Finding{EntityType: entity, EntityID: id, Severity: enums.CheckStatusWarning, Detail: fmt.Sprintf(format, args...)}
}

func fail(entity string, id uuid.UUID, format string, args ...any) Finding {
	return Finding{EntityType: entity, EntityID: id, Severity: enums.CheckStatusFail, Detail: fmt.Sprintf(format, args...)}
}
