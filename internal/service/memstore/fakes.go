package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/esummit/pass-registry/internal/identity"
	"github.com/esummit/pass-registry/internal/queue"
	"github.com/esummit/pass-registry/internal/ticketing"
)

// ErrGatewayDown is returned by Gateway when Down is set.
var ErrGatewayDown = errors.New("gateway unavailable")

// Gateway is a scripted ticketing provider.  Orders start pending; tests
// move them with SetStatus.
type Gateway struct {
	mu        sync.Mutex
	orders    map[string]ticketing.Order
	next      int
	Secret    []byte
	Down      bool
	Requests  []ticketing.OrderRequest
	Cancelled []string
	Fetches   int
}

func NewGateway(secret string) *Gateway {
	return &Gateway{orders: map[string]ticketing.Order{}, Secret: []byte(secret)}
}

func (g *Gateway) CreateOrder(_ context.Context, req ticketing.OrderRequest) (ticketing.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Down {
		return ticketing.Order{}, ErrGatewayDown
	}
	if req.Customer.Email == "" {
		return ticketing.Order{}, ticketing.ErrInvalidRequest
	}
	g.next++
	id := fmt.Sprintf("ord_%d", g.next)
	o := ticketing.Order{
		OrderID:     id,
		Status:      ticketing.OrderPending,
		Currency:    ticketing.DefaultCurrency,
		CheckoutURL: "https://checkout.example/" + id,
		PaymentURL:  "https://checkout.example/" + id,
	}
	g.orders[id] = o
	g.Requests = append(g.Requests, req)
	return o, nil
}

func (g *Gateway) GetOrder(_ context.Context, orderID string) (ticketing.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Fetches++
	if g.Down {
		return ticketing.Order{}, ErrGatewayDown
	}
	o, ok := g.orders[orderID]
	if !ok {
		return ticketing.Order{}, &ticketing.Error{Op: "get order", Status: 404, Message: "order not found"}
	}
	return o, nil
}

func (g *Gateway) CancelOrder(_ context.Context, orderID string) (ticketing.CancelResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Down {
		return ticketing.CancelResult{}, ErrGatewayDown
	}
	g.Cancelled = append(g.Cancelled, orderID)
	if o, ok := g.orders[orderID]; ok {
		o.Status = ticketing.OrderCancelled
		g.orders[orderID] = o
	}
	return ticketing.CancelResult{Success: true}, nil
}

func (g *Gateway) VerifyWebhookSignature(payload []byte, signature string) bool {
	if len(g.Secret) == 0 || signature == "" {
		return false
	}
	return signature == ticketing.Sign(g.Secret, payload)
}

// SetStatus moves an order to status, optionally assigning a ticket and
// amount.
func (g *Gateway) SetStatus(orderID string, status ticketing.OrderStatus, ticketID string, amount decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o := g.orders[orderID]
	o.OrderID = orderID
	o.Status = status
	o.TicketID = ticketID
	o.Amount = amount
	g.orders[orderID] = o
}

// Profiles is an identity provider backed by a map.
type Profiles struct {
	mu    sync.Mutex
	users map[string]identity.Profile
	Calls int
}

func NewProfiles(ps ...identity.Profile) *Profiles {
	p := &Profiles{users: map[string]identity.Profile{}}
	for _, x := range ps {
		p.users[x.ID] = x
	}
	return p
}

func (p *Profiles) GetUser(_ context.Context, externalID string) (identity.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls++
	x, ok := p.users[externalID]
	if !ok {
		return identity.Profile{}, identity.ErrNotFound
	}
	return x, nil
}

// Events records published pass.issued events.
type Events struct {
	mu   sync.Mutex
	list []queue.PassIssuedEvent
	Fail bool
}

func (e *Events) PublishPassIssued(_ context.Context, ev queue.PassIssuedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Fail {
		return errors.New("broker down")
	}
	e.list = append(e.list, ev)
	return nil
}

// Published returns a copy of the recorded events.
func (e *Events) Published() []queue.PassIssuedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]queue.PassIssuedEvent(nil), e.list...)
}
