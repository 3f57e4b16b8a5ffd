package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/esummit/pass-registry/internal/identity"
	"github.com/esummit/pass-registry/internal/model"
	"github.com/esummit/pass-registry/internal/service"
	"github.com/esummit/pass-registry/internal/service/memstore"
	"github.com/esummit/pass-registry/internal/ticketing"
)

const webhookSecret = "konfhub-test-secret"

type harness struct {
	store    *memstore.Store
	gw       *memstore.Gateway
	profiles *memstore.Profiles
	events   *memstore.Events
	dir      *service.Directory
	engine   *service.Engine
	claims   *service.Claims
}

func newHarness(t *testing.T, autoApprove bool) *harness {
	t.Helper()
	h := &harness{
		store: memstore.New(),
		gw:    memstore.NewGateway(webhookSecret),
		profiles: memstore.NewProfiles(
			identity.Profile{ID: "user_1", Email: "asha@example.com", FirstName: "Asha", LastName: "Rao"},
			identity.Profile{ID: "user_2", Email: "ben@example.com", FirstName: "Ben"},
			identity.Profile{ID: "user_noemail"},
		),
		events: &memstore.Events{},
	}
	users, passes := h.store.Users(), h.store.Passes()
	h.dir = service.NewDirectory(users, h.profiles, nil)
	h.engine = service.NewEngine(service.EngineDeps{
		Directory:    h.dir,
		Users:        users,
		Transactions: h.store.Transactions(),
		Passes:       passes,
		Tx:           h.store,
		Gateway:      h.gw,
		Events:       h.events,
	})
	h.claims = service.NewClaims(service.ClaimsDeps{
		Directory:   h.dir,
		Users:       users,
		Claims:      h.store.Claims(),
		Passes:      passes,
		Tx:          h.store,
		Events:      h.events,
		TTL:         time.Hour,
		AutoApprove: autoApprove,
	})
	return h
}

func price(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// order creates a pending order for externalID.
func (h *harness) order(t *testing.T, externalID string, pt model.PassType, amount int64) service.OrderResult {
	t.Helper()
	res, err := h.engine.CreateOrder(context.Background(), service.CreateOrderInput{
		ExternalID: externalID, PassType: pt, Price: price(amount),
	})
	require.NoError(t, err)
	return res
}

// pay marks the order completed on the gateway.
func (h *harness) pay(orderID string, amount int64) {
	h.gw.SetStatus(orderID, ticketing.OrderCompleted, "tkt_"+orderID, price(amount))
}

func (h *harness) txn(t *testing.T, orderID string) model.Transaction {
	t.Helper()
	tx, err := h.store.Transactions().GetByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	return tx
}

func (h *harness) userID(t *testing.T, externalID string) uint64 {
	t.Helper()
	u, err := h.store.Users().GetByExternalID(context.Background(), externalID)
	require.NoError(t, err)
	return u.ID
}

// webhook returns a signed provider notification.
func webhook(t *testing.T, event ticketing.WebhookEventType, orderID, ticketID string) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(ticketing.WebhookEvent{Event: event, OrderID: orderID, TicketID: ticketID})
	require.NoError(t, err)
	return body, ticketing.Sign([]byte(webhookSecret), body)
}
