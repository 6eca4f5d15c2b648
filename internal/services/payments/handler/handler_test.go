package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"stripe-checkout/internal/flash"
	"stripe-checkout/internal/receipt"
	"stripe-checkout/internal/services/payments"
	"stripe-checkout/internal/services/payments/types"
	"stripe-checkout/internal/views"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
)

// fakeProvider stands in for Stripe.
type fakeProvider struct {
	createErr error
	getErr    error
	status    types.IntentStatus
	session   *types.CheckoutSession

	created []types.PaymentRequest
}

func (f *fakeProvider) CreatePaymentIntent(_ context.Context, req types.PaymentRequest) (*types.PaymentIntent, error) {
	f.created = append(f.created, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &types.PaymentIntent{
		ID:           "pi_new",
		Amount:       req.Amount,
		Currency:     req.Currency,
		Status:       types.IntentStatusRequiresPaymentMethod,
		ClientSecret: "pi_new_secret_xyz",
	}, nil
}

func (f *fakeProvider) GetPaymentIntent(_ context.Context, id string) (*types.PaymentIntent, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &types.PaymentIntent{ID: id, Amount: 2000, Currency: "usd", Status: f.status}, nil
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, _ types.CheckoutSessionRequest) (*types.CheckoutSession, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &types.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/c/pay/cs_1"}, nil
}

func (f *fakeProvider) GetCheckoutSession(_ context.Context, id string) (*types.CheckoutSession, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.session != nil {
		return f.session, nil
	}
	return &types.CheckoutSession{ID: id, PaymentIntentID: "pi_hosted"}, nil
}

type testEnv struct {
	router   *chi.Mux
	provider *fakeProvider
	flashes  *flash.MemoryStore
	logs     *bytes.Buffer
	signer   *receipt.Signer
}

func newTestEnv(t *testing.T, provider *fakeProvider, withReceipts bool) *testEnv {
	t.Helper()

	pages, err := views.NewRenderer()
	require.NoError(t, err)

	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, nil))

	var svcOpts []payments.Option
	var hOpts []Option
	var signer *receipt.Signer
	if withReceipts {
		signer = receipt.NewSigner("test-key", "checkout")
		svcOpts = append(svcOpts, payments.WithReceiptSigner(signer))
		hOpts = append(hOpts, WithReceiptVerifier(signer))
	}
	svcOpts = append(svcOpts, payments.WithLogger(logger))
	hOpts = append(hOpts, WithLogger(logger))

	svc := payments.NewService(provider, payments.Options{
		Currency:      "usd",
		ProductName:   "Limited Edition T-Shirt",
		DefaultAmount: 2000,
		MinAmount:     50,
		PublicURL:     "http://localhost:8080",
	}, svcOpts...)

	flashes := flash.NewMemoryStore()
	h := NewHandler(svc, pages, flashes, PageConfig{
		PublishableKey: "pk_test_123",
		ProductName:    "Limited Edition T-Shirt",
		DefaultAmount:  2000,
		Currency:       "usd",
	}, hOpts...)
	h.now = func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) }

	r := chi.NewRouter()
	h.Register(r)

	return &testEnv{router: r, provider: provider, flashes: flashes, logs: logs, signer: signer}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestCheckoutPage(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, false)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/checkout", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `data-publishable-key="pk_test_123"`)
	assert.Contains(t, body, `data-amount="2000"`)
	assert.Contains(t, body, `data-currency="usd"`)
	assert.Contains(t, body, "20.00 USD")
	assert.Contains(t, body, "data-idempotency-key=")
}

func TestCreatePaymentIntent_DefaultAmount(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, false)

	rec := env.do(jsonRequest(http.MethodPost, "/checkout/payment-intent", `{}`))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[types.PaymentIntentResponse](t, rec)
	assert.Equal(t, "pi_new_secret_xyz", resp.ClientSecret)
	assert.Equal(t, "pi_new", resp.PaymentIntentID)
	require.Len(t, env.provider.created, 1)
	assert.Equal(t, int64(2000), env.provider.created[0].Amount)
}

func TestCreatePaymentIntent_EmptyBody(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, false)

	rec := env.do(jsonRequest(http.MethodPost, "/checkout/payment-intent", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2000), env.provider.created[0].Amount)
}

func TestCreatePaymentIntent_CustomAmountAndIdempotencyKey(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, false)

	req := jsonRequest(http.MethodPost, "/checkout/payment-intent", `{"amount": 4500}`)
	req.Header.Set("Idempotency-Key", "idem-42")
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(4500), env.provider.created[0].Amount)
	assert.Equal(t, "idem-42", env.provider.created[0].IdempotencyKey)
}

func TestCreatePaymentIntent_BelowMinimum(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, false)

	rec := env.do(jsonRequest(http.MethodPost, "/checkout/payment-intent", `{"amount": 25}`))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decode[types.ErrorResponse](t, rec)
	assert.Equal(t, msgInvalidAmount, resp.Error)
	assert.Empty(t, env.provider.created)
}

func TestCreatePaymentIntent_NonIntegerAmount(t *testing.T) {
	for _, body := range []string{`{"amount": 25.5}`, `{"amount": "2000"}`, `{"amount": 1e2}`} {
		t.Run(body, func(t *testing.T) {
			env := newTestEnv(t, &fakeProvider{}, false)

			rec := env.do(jsonRequest(http.MethodPost, "/checkout/payment-intent", body))

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			resp := decode[types.ErrorResponse](t, rec)
			assert.Equal(t, msgInvalidAmount, resp.Error)
			assert.Contains(t, resp.Message, "amount")
			assert.Empty(t, env.provider.created)
		})
	}
}

func TestCreatePaymentIntent_NullAmountUsesDefault(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, false)

	rec := env.do(jsonRequest(http.MethodPost, "/checkout/payment-intent", `{"amount": null}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2000), env.provider.created[0].Amount)
}

func TestCreatePaymentIntent_InvalidJSON(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, false)

	rec := env.do(jsonRequest(http.MethodPost, "/checkout/payment-intent", `{"amount":`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.provider.created)
}

func TestCreatePaymentIntent_GatewayFailureIsLogged(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{createErr: &stripe.Error{Msg: "Invalid API Key provided"}}, false)

	rec := env.do(jsonRequest(http.MethodPost, "/checkout/payment-intent", `{}`))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[types.ErrorResponse](t, rec)
	assert.Equal(t, msgCreateFailed, resp.Error)
	assert.Equal(t, "Invalid API Key provided", resp.Message)
	assert.Contains(t, env.logs.String(), "Invalid API Key provided")
}

func TestCreatePaymentIntent_NetworkFailureHidesDetail(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{createErr: errors.New("dial tcp 10.0.0.1:443: i/o timeout")}, false)

	rec := env.do(jsonRequest(http.MethodPost, "/checkout/payment-intent", `{}`))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[types.ErrorResponse](t, rec)
	assert.Equal(t, msgCreateFailed, resp.Error)
	assert.Empty(t, resp.Message)
	assert.Contains(t, env.logs.String(), "i/o timeout")
}

func TestConfirmPayment_Succeeded(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{status: types.IntentStatusSucceeded}, false)

	rec := env.do(jsonRequest(http.MethodPost, "/checkout/confirm", `{"payment_intent_id":"pi_123"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[types.ConfirmResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Regexp(t, payments.OrderNumberPattern, resp.OrderNumber)
	assert.Equal(t, int64(2000), resp.Amount)
	assert.Equal(t, "usd", resp.Currency)

	u, err := url.Parse(resp.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "/checkout/success", u.Path)
	assert.Equal(t, "pi_123", u.Query().Get("payment_intent_id"))
	assert.Equal(t, resp.OrderNumber, u.Query().Get("order_number"))
}

func TestConfirmPayment_RequiresAction(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{status: types.IntentStatusRequiresAction}, false)

	rec := env.do(jsonRequest(http.MethodPost, "/checkout/confirm", `{"payment_intent_id":"pi_123"}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[types.ConfirmResponse](t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, msgNotCompleted, resp.Error)
	assert.Equal(t, "/checkout/cancel", resp.RedirectURL)
	assert.Empty(t, resp.OrderNumber)
}

func TestConfirmPayment_MissingID(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, false)

	rec := env.do(jsonRequest(http.MethodPost, "/checkout/confirm", `{}`))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestConfirmPayment_GatewayError(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{getErr: &stripe.Error{Msg: "No such payment_intent: 'pi_nope'"}}, false)

	rec := env.do(jsonRequest(http.MethodPost, "/checkout/confirm", `{"payment_intent_id":"pi_nope"}`))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[types.ConfirmResponse](t, rec)
	assert.Equal(t, msgVerifyFailed, resp.Error)
	assert.Equal(t, "/checkout/cancel", resp.RedirectURL)
	assert.Contains(t, env.logs.String(), "No such payment_intent")
}

func formRequest(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestConfirmPaymentRedirect_Succeeded(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{status: types.IntentStatusSucceeded}, false)

	rec := env.do(formRequest("/checkout/confirm/redirect", url.Values{"payment_intent_id": {"pi_123"}}))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/checkout/success", loc.Path)
	assert.Equal(t, "pi_123", loc.Query().Get("payment_intent_id"))
}

// cancelAfter follows a redirect to the cancel page carrying its cookies.
func (e *testEnv) cancelAfter(t *testing.T, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	t.Helper()
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/checkout/cancel", rec.Header().Get("Location"))

	req := httptest.NewRequest(http.MethodGet, "/checkout/cancel", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return e.do(req)
}

func TestConfirmPaymentRedirect_NotSucceededFlashesError(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{status: types.IntentStatusCanceled}, false)

	rec := env.do(formRequest("/checkout/confirm/redirect", url.Values{"payment_intent_id": {"pi_123"}}))
	cancel := env.cancelAfter(t, rec)

	require.Equal(t, http.StatusOK, cancel.Code)
	assert.Contains(t, cancel.Body.String(), msgNotCompleted)
}

func TestConfirmPaymentRedirect_GatewayErrorFlashesError(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{getErr: errors.New("boom")}, false)

	rec := env.do(formRequest("/checkout/confirm/redirect", url.Values{"payment_intent_id": {"pi_123"}}))
	cancel := env.cancelAfter(t, rec)

	assert.Contains(t, cancel.Body.String(), msgVerifyFailed)
}

func TestCancel_FlashIsShownOnce(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{status: types.IntentStatusFailed}, false)

	rec := env.do(formRequest("/checkout/confirm/redirect", url.Values{"payment_intent_id": {"pi_123"}}))
	first := env.cancelAfter(t, rec)
	assert.Contains(t, first.Body.String(), msgNotCompleted)

	second := env.cancelAfter(t, rec)
	assert.NotContains(t, second.Body.String(), msgNotCompleted)
}

func TestCancel_WithoutFlash(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, false)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/checkout/cancel", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Payment Cancelled")
	assert.NotContains(t, rec.Body.String(), "flash-error")
}

func TestReturnFromStripe(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{status: types.IntentStatusSucceeded}, false)

	rec := env.do(httptest.NewRequest(http.MethodGet,
		"/checkout/return?payment_intent=pi_3ds&payment_intent_client_secret=secret", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "pi_3ds", loc.Query().Get("payment_intent_id"))
}

func TestHostedCheckout_RedirectsToStripe(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, false)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/checkout", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_1", rec.Header().Get("Location"))
}

func TestHostedCheckout_FailureGoesToCancel(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{createErr: errors.New("boom")}, false)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/checkout", nil))
	cancel := env.cancelAfter(t, rec)

	assert.Contains(t, cancel.Body.String(), msgCreateFailed)
}

func TestHostedCheckout_Complete(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{status: types.IntentStatusSucceeded}, false)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/checkout/session/complete?session_id=cs_1", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/checkout/success", loc.Path)
	assert.Equal(t, "pi_hosted", loc.Query().Get("payment_intent_id"))
}

func TestSuccess_FromQuery(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, false)

	rec := env.do(httptest.NewRequest(http.MethodGet,
		"/checkout/success?order_number=ORD-2026-ABC123&amount=4500&currency=eur&payment_intent_id=pi_1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "ORD-2026-ABC123")
	assert.Contains(t, body, "45.00 EUR")
	assert.Contains(t, body, "pi_1")
	assert.NotContains(t, body, "receipt-verified")
}

func TestSuccess_Defaults(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, false)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/checkout/success", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "20.00 USD")
	assert.Contains(t, body, "ORD-2026-")
}

func TestSuccess_VerifiedReceiptWinsOverQuery(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{status: types.IntentStatusSucceeded}, true)

	confirm := env.do(jsonRequest(http.MethodPost, "/checkout/confirm", `{"payment_intent_id":"pi_123"}`))
	require.Equal(t, http.StatusOK, confirm.Code)
	resp := decode[types.ConfirmResponse](t, confirm)

	u, err := url.Parse(resp.RedirectURL)
	require.NoError(t, err)
	q := u.Query()
	require.NotEmpty(t, q.Get("receipt"))
	q.Set("amount", "1")

	rec := env.do(httptest.NewRequest(http.MethodGet, u.Path+"?"+q.Encode(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "receipt-verified")
	assert.Contains(t, body, "20.00 USD")
	assert.Contains(t, body, resp.OrderNumber)
}

func TestSuccess_BadReceiptFallsBackToQuery(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, true)

	rec := env.do(httptest.NewRequest(http.MethodGet,
		"/checkout/success?order_number=ORD-2026-ZZZ999&amount=100&currency=usd&receipt=not-a-token", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.NotContains(t, body, "receipt-verified")
	assert.Contains(t, body, "1.00 USD")
	assert.Contains(t, env.logs.String(), "rejecting success receipt")
}
