package ticketing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, APIKey: "key"}, nil)
}

func TestCreateOrder_SendsHeadersAndNormalizesResponse(t *testing.T) {
	var got OrderRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/orders", r.URL.Path)
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.Equal(t, "1.0", r.Header.Get("X-API-Version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ord_1","status":"pending","amount":499,"paymentUrl":"https://pay/1"}`))
	})

	o, err := c.CreateOrder(context.Background(), OrderRequest{
		Quantity: 1,
		Customer: CustomerInfo{Name: "A", Email: "a@x.io"},
		Metadata: OrderMetadata{ClerkUserID: "user_1", PassType: "Pixel"},
	})
	require.NoError(t, err)
	require.Equal(t, "ord_1", o.OrderID)
	require.Equal(t, OrderPending, o.Status)
	require.True(t, o.Amount.Equal(decimal.NewFromInt(499)))
	require.Equal(t, "INR", o.Currency)
	require.Equal(t, "https://pay/1", o.CheckoutURL)
	require.Equal(t, "user_1", got.Metadata.ClerkUserID)
}

func TestCreateOrder_DerivesAmountFromUnitPrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"ord_2","price":"249.50"}`))
	})

	o, err := c.CreateOrder(context.Background(), OrderRequest{Quantity: 2, Customer: CustomerInfo{Email: "a@x.io"}})
	require.NoError(t, err)
	require.Equal(t, OrderPending, o.Status)
	require.True(t, o.Amount.Equal(decimal.RequireFromString("499")), o.Amount.String())
}

func TestCreateOrder_ValidatesBeforeCalling(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := c.CreateOrder(context.Background(), OrderRequest{Quantity: 0, Customer: CustomerInfo{Email: "a@x.io"}})
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = c.CreateOrder(context.Background(), OrderRequest{Quantity: 1})
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.False(t, called)
}

func TestGetOrder_AcceptsOrderIDSpelling(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/orders/ord_2", r.URL.Path)
		_, _ = w.Write([]byte(`{"orderId":"ord_2","status":"completed","amount":"999.00","currency":"USD","ticketId":"t1","paymentId":"p1"}`))
	})
	o, err := c.GetOrder(context.Background(), "ord_2")
	require.NoError(t, err)
	require.Equal(t, "ord_2", o.OrderID)
	require.Equal(t, OrderCompleted, o.Status)
	require.Equal(t, "USD", o.Currency)
	require.Equal(t, "t1", o.TicketID)
	require.Equal(t, "p1", o.PaymentID)
}

func TestUpstreamErrorCarriesMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"sold out"}`))
	})
	_, err := c.GetOrder(context.Background(), "ord_3")
	var tErr *Error
	require.True(t, errors.As(err, &tErr))
	require.Equal(t, http.StatusBadRequest, tErr.Status)
	require.Equal(t, "sold out", tErr.Message)
	require.Contains(t, err.Error(), "sold out")
}

func TestCancelOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/orders/ord_4/cancel", r.URL.Path)
		_, _ = w.Write([]byte(`{}`))
	})
	res, err := c.CancelOrder(context.Background(), "ord_4")
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestGetTicket(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/tickets/t9", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"t9","ticketNumber":"TN-9"}`))
	})
	raw, err := c.GetTicket(context.Background(), "t9")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"t9","ticketNumber":"TN-9"}`, string(raw))
}
