package bids

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/sourcing-engine/api/middleware"
	internalbids "github.com/angelmondragon/sourcing-engine/internal/bids"
	"github.com/angelmondragon/sourcing-engine/internal/rollup"
	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/sourcing-engine/pkg/errors"
)

type stubService struct {
	internalbids.Service

	quote     *models.SupplierQuote
	selection *internalbids.Selection
	err       error

	submitted internalbids.SubmitBidInput
	selected  internalbids.SelectWinnerInput
	reversed  internalbids.ReverseSelectionInput
	currency  enums.Currency
}

func (s *stubService) SubmitBid(_ context.Context, input internalbids.SubmitBidInput) (*models.SupplierQuote, error) {
	s.submitted = input
	return s.quote, s.err
}

func (s *stubService) SelectWinner(_ context.Context, input internalbids.SelectWinnerInput) (*internalbids.Selection, error) {
	s.selected = input
	return s.selection, s.err
}

func (s *stubService) ReverseSelection(_ context.Context, input internalbids.ReverseSelectionInput) (*internalbids.Selection, error) {
	s.reversed = input
	return s.selection, s.err
}

func (s *stubService) Compare(_ context.Context, requestID uuid.UUID, currency enums.Currency) (*rollup.QuoteComparison, error) {
	s.currency = currency
	return &rollup.QuoteComparison{RequestID: requestID}, s.err
}

func request(method, body string, role enums.ActorRole, actor string, params map[string]string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, "/", nil)
	} else {
		req = httptest.NewRequest(method, "/", strings.NewReader(body))
	}
	ctx := middleware.WithActor(req.Context(), actor, role)
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rc))
}

func bidBody(componentID uuid.UUID, bidder string) string {
	return `{"bidder":"` + bidder + `","currency":"eur","shipping_cost":"10","importation_tax":"5.50","lead_time_days":7,` +
		`"line_items":[{"component_id":"` + componentID.String() + `","unit_price":"100.25","quantity":2}]}`
}

func TestSubmitUsesSupplierIdentity(t *testing.T) {
	requestID := uuid.New()
	componentID := uuid.New()
	svc := &stubService{quote: &models.SupplierQuote{ID: uuid.New(), RequestID: requestID, Bidder: "acme"}}
	rec := httptest.NewRecorder()

	Submit(svc, nil).ServeHTTP(rec, request(http.MethodPost, bidBody(componentID, ""), enums.ActorRoleSupplier, "acme", map[string]string{paramRequestID: requestID.String()}))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "acme", svc.submitted.Bidder)
	assert.Equal(t, enums.CurrencyEUR, svc.submitted.Currency)
	require.Len(t, svc.submitted.LineItems, 1)
	assert.True(t, svc.submitted.LineItems[0].UnitPrice.Equal(decimal.RequireFromString("100.25")))
	assert.True(t, svc.submitted.ImportationTax.Equal(decimal.RequireFromString("5.5")))
}

func TestSubmitRejectsSupplierImpersonation(t *testing.T) {
	requestID := uuid.New()
	svc := &stubService{}
	rec := httptest.NewRecorder()

	Submit(svc, nil).ServeHTTP(rec, request(http.MethodPost, bidBody(uuid.New(), "other"), enums.ActorRoleSupplier, "acme", map[string]string{paramRequestID: requestID.String()}))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, uuid.Nil, svc.submitted.RequestID)
}

func TestSubmitManagerMustNameBidder(t *testing.T) {
	requestID := uuid.New()
	svc := &stubService{}
	rec := httptest.NewRecorder()

	Submit(svc, nil).ServeHTTP(rec, request(http.MethodPost, bidBody(uuid.New(), ""), enums.ActorRoleManager, "manager-1", map[string]string{paramRequestID: requestID.String()}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitValidatesAmounts(t *testing.T) {
	requestID := uuid.New()
	svc := &stubService{}
	rec := httptest.NewRecorder()
	body := `{"currency":"EUR","shipping_cost":"-1","importation_tax":"0","line_items":[{"component_id":"` + uuid.NewString() + `","unit_price":"1","quantity":1}]}`

	Submit(svc, nil).ServeHTTP(rec, request(http.MethodPost, body, enums.ActorRoleSupplier, "acme", map[string]string{paramRequestID: requestID.String()}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "shipping_cost")
}

func TestSelectWinnerReturnsRequestAndQuote(t *testing.T) {
	requestID := uuid.New()
	quoteID := uuid.New()
	svc := &stubService{selection: &internalbids.Selection{
		Request: &models.Request{ID: requestID, Status: enums.RequestStatusQuoteSelected},
		Quote:   &models.SupplierQuote{ID: quoteID, RequestID: requestID, Status: enums.SupplierQuoteStatusSelected},
	}}
	rec := httptest.NewRecorder()

	SelectWinner(svc, nil).ServeHTTP(rec, request(http.MethodPost, `{"quote_id":"`+quoteID.String()+`"}`, enums.ActorRoleManager, "manager-1", map[string]string{paramRequestID: requestID.String()}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, quoteID, svc.selected.QuoteID)
	assert.Equal(t, "manager-1", svc.selected.Actor)

	var envelope struct {
		Data struct {
			Request struct {
				Status string `json:"status"`
			} `json:"request"`
			Quote struct {
				Status string `json:"status"`
			} `json:"quote"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.Equal(t, "quote_selected", envelope.Data.Request.Status)
	assert.Equal(t, "selected", envelope.Data.Quote.Status)
}

func TestSelectWinnerConflict(t *testing.T) {
	requestID := uuid.New()
	svc := &stubService{err: pkgerrors.New(pkgerrors.CodeWinnerAlreadySelected, "a winner is already selected")}
	rec := httptest.NewRecorder()

	SelectWinner(svc, nil).ServeHTTP(rec, request(http.MethodPost, `{"quote_id":"`+uuid.NewString()+`"}`, enums.ActorRoleManager, "manager-1", map[string]string{paramRequestID: requestID.String()}))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReverseSelectionAcceptsEmptyBody(t *testing.T) {
	requestID := uuid.New()
	svc := &stubService{selection: &internalbids.Selection{Request: &models.Request{ID: requestID, Status: enums.RequestStatusOpenForQuotes}}}
	rec := httptest.NewRecorder()

	ReverseSelection(svc, nil).ServeHTTP(rec, request(http.MethodPost, "", enums.ActorRoleManager, "manager-1", map[string]string{paramRequestID: requestID.String()}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, requestID, svc.reversed.RequestID)
	assert.NotContains(t, rec.Body.String(), `"quote"`)
}

func TestCompareParsesCurrency(t *testing.T) {
	requestID := uuid.New()
	svc := &stubService{}

	rec := httptest.NewRecorder()
	req := request(http.MethodGet, "", enums.ActorRoleManager, "manager-1", map[string]string{paramRequestID: requestID.String()})
	req.URL.RawQuery = "currency=usd"
	Compare(svc, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, enums.CurrencyUSD, svc.currency)

	rec = httptest.NewRecorder()
	req = request(http.MethodGet, "", enums.ActorRoleManager, "manager-1", map[string]string{paramRequestID: requestID.String()})
	req.URL.RawQuery = "currency=dollars"
	Compare(svc, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
