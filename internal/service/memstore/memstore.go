// Package memstore provides in-memory implementations of the service
// stores and external collaborators.  WithTx serializes units of work and
// restores a snapshot on error, which mirrors the row locking and rollback
// the MySQL repositories rely on.  Unique keys match the schema.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/esummit/pass-registry/internal/model"
	"github.com/esummit/pass-registry/internal/repository"
)

// Store holds every table.
type Store struct {
	txMu sync.Mutex // held for the whole of a WithTx unit and by writes outside one
	mu   sync.Mutex // guards the maps

	nextUserID uint64
	users      map[uint64]model.User
	txs        map[string]model.Transaction
	passes     map[string]model.Pass
	claims     map[string]model.PassClaim
	clock      int64

	// PassCreateHook, when set, runs before a pass insert and aborts it
	// with the returned error.
	PassCreateHook func(p *model.Pass) error
}

func New() *Store {
	return &Store{
		users:  map[uint64]model.User{},
		txs:    map[string]model.Transaction{},
		passes: map[string]model.Pass{},
		claims: map[string]model.PassClaim{},
	}
}

type txKey struct{}

// WithTx runs fn as one atomic unit.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// write locks the maps for a mutation.  Outside a unit it also waits for
// any running unit, so a rollback cannot discard the write.
func (s *Store) write(ctx context.Context) (unlock func()) {
	if ctx.Value(txKey{}) != nil {
		s.mu.Lock()
		return s.mu.Unlock
	}
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

type snapshot struct {
	nextUserID uint64
	users      map[uint64]model.User
	txs        map[string]model.Transaction
	passes     map[string]model.Pass
	claims     map[string]model.PassClaim
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{
		nextUserID: s.nextUserID,
		users:      cloneMap(s.users),
		txs:        cloneMap(s.txs),
		passes:     cloneMap(s.passes),
		claims:     cloneMap(s.claims),
	}
}

func (s *Store) restore(sn snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUserID = sn.nextUserID
	s.users, s.txs, s.passes, s.claims = sn.users, sn.txs, sn.passes, sn.claims
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// tick returns strictly increasing timestamps so newest-first ordering is
// deterministic.
func (s *Store) tick() time.Time {
	s.clock++
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.clock) * time.Millisecond)
}

// Users returns the user table.
func (s *Store) Users() *Users { return &Users{s} }

// Transactions returns the transaction table.
func (s *Store) Transactions() *Transactions { return &Transactions{s} }

// Passes returns the pass table.
func (s *Store) Passes() *Passes { return &Passes{s} }

// Claims returns the claim table.
func (s *Store) Claims() *Claims { return &Claims{s} }

// ---- users ----

type Users struct{ s *Store }

func (u *Users) GetByExternalID(_ context.Context, id string) (model.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, v := range u.s.users {
		if v.ExternalID == id {
			return v, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (u *Users) GetByEmail(_ context.Context, email string) (model.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, v := range u.s.users {
		if v.Email == email {
			return v, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (u *Users) GetByID(_ context.Context, id uint64) (model.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	v, ok := u.s.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return v, nil
}

func (u *Users) LockByID(ctx context.Context, id uint64) error {
	_, err := u.GetByID(ctx, id)
	return err
}

func (u *Users) conflict(x *model.User) bool {
	for id, v := range u.s.users {
		if id != x.ID && (v.ExternalID == x.ExternalID || v.Email == x.Email) {
			return true
		}
	}
	return false
}

func (u *Users) Create(ctx context.Context, x *model.User) error {
	defer u.s.write(ctx)()
	if u.conflict(x) {
		return repository.ErrDuplicate
	}
	u.s.nextUserID++
	x.ID = u.s.nextUserID
	x.CreatedAt = u.s.tick()
	x.UpdatedAt = x.CreatedAt
	u.s.users[x.ID] = *x
	return nil
}

func (u *Users) Update(ctx context.Context, x *model.User) error {
	defer u.s.write(ctx)()
	if _, ok := u.s.users[x.ID]; !ok {
		return repository.ErrNotFound
	}
	if u.conflict(x) {
		return repository.ErrDuplicate
	}
	x.UpdatedAt = u.s.tick()
	u.s.users[x.ID] = *x
	return nil
}

func (u *Users) DeleteByExternalID(ctx context.Context, externalID string) (int64, error) {
	defer u.s.write(ctx)()
	var n int64
	for id, v := range u.s.users {
		if v.ExternalID != externalID {
			continue
		}
		delete(u.s.users, id)
		n++
		for k, t := range u.s.txs {
			if t.UserID == id {
				delete(u.s.txs, k)
			}
		}
		for k, p := range u.s.passes {
			if p.UserID == id {
				delete(u.s.passes, k)
			}
		}
		for k, c := range u.s.claims {
			if c.UserID == id {
				delete(u.s.claims, k)
			}
		}
	}
	return n, nil
}

// Count returns the number of stored users.
func (u *Users) Count() int {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	return len(u.s.users)
}

// ---- transactions ----

type Transactions struct{ s *Store }

func (r *Transactions) Create(ctx context.Context, t *model.Transaction) error {
	defer r.s.write(ctx)()
	for _, v := range r.s.txs {
		if v.ID == t.ID || v.OrderID == t.OrderID || v.InvoiceNumber == t.InvoiceNumber ||
			v.TransactionNumber == t.TransactionNumber {
			return repository.ErrDuplicate
		}
	}
	t.CreatedAt = r.s.tick()
	t.UpdatedAt = t.CreatedAt
	r.s.txs[t.ID] = *t
	return nil
}

func (r *Transactions) GetByID(_ context.Context, id string) (model.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.txs[id]
	if !ok {
		return model.Transaction{}, repository.ErrNotFound
	}
	return t, nil
}

func (r *Transactions) GetByOrderID(_ context.Context, orderID string) (model.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.txs {
		if t.OrderID == orderID {
			return t, nil
		}
	}
	return model.Transaction{}, repository.ErrNotFound
}

func (r *Transactions) GetByOrderIDForUpdate(ctx context.Context, orderID string) (model.Transaction, error) {
	return r.GetByOrderID(ctx, orderID)
}

func (r *Transactions) Update(ctx context.Context, t *model.Transaction) error {
	defer r.s.write(ctx)()
	if _, ok := r.s.txs[t.ID]; !ok {
		return repository.ErrNotFound
	}
	t.UpdatedAt = r.s.tick()
	r.s.txs[t.ID] = *t
	return nil
}

func (r *Transactions) IdentifiersTaken(_ context.Context, invoice, number string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.txs {
		if t.InvoiceNumber == invoice || t.TransactionNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (r *Transactions) detail(t model.Transaction) model.TransactionDetail {
	d := model.TransactionDetail{Transaction: t}
	if u, ok := r.s.users[t.UserID]; ok {
		d.User = &model.UserSummary{Email: u.Email, FullName: u.FullName}
	}
	if t.PassID != nil {
		if p, ok := r.s.passes[*t.PassID]; ok {
			d.Pass = &model.PassSummary{PassCode: p.PassCode, PassType: p.PassType, Status: p.Status}
		}
	}
	return d
}

func (r *Transactions) GetDetail(_ context.Context, id string) (model.TransactionDetail, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.txs[id]
	if !ok {
		return model.TransactionDetail{}, repository.ErrNotFound
	}
	return r.detail(t), nil
}

func (r *Transactions) list(keep func(model.Transaction) bool) []model.TransactionDetail {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.TransactionDetail{}
	for _, t := range r.s.txs {
		if keep(t) {
			out = append(out, r.detail(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *Transactions) ListByUser(_ context.Context, userID uint64) ([]model.TransactionDetail, error) {
	return r.list(func(t model.Transaction) bool { return t.UserID == userID }), nil
}

func (r *Transactions) ListByStatus(_ context.Context, status model.TransactionStatus) ([]model.TransactionDetail, error) {
	return r.list(func(t model.Transaction) bool { return t.Status == status }), nil
}

// ---- passes ----

type Passes struct{ s *Store }

func (r *Passes) Create(ctx context.Context, p *model.Pass) error {
	if h := r.s.PassCreateHook; h != nil {
		if err := h(p); err != nil {
			return err
		}
	}
	defer r.s.write(ctx)()
	for _, v := range r.s.passes {
		if v.ID == p.ID || v.PassCode == p.PassCode {
			return repository.ErrDuplicate
		}
		if p.Status.Counts() && v.Status.Counts() && v.UserID == p.UserID {
			return repository.ErrDuplicate
		}
		if p.TransactionID != nil && v.TransactionID != nil && *p.TransactionID == *v.TransactionID {
			return repository.ErrDuplicate
		}
	}
	p.CreatedAt = r.s.tick()
	p.UpdatedAt = p.CreatedAt
	r.s.passes[p.ID] = *p
	return nil
}

func (r *Passes) find(keep func(model.Pass) bool) (model.Pass, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.passes {
		if keep(p) {
			return p, nil
		}
	}
	return model.Pass{}, repository.ErrNotFound
}

func (r *Passes) GetByID(_ context.Context, id string) (model.Pass, error) {
	return r.find(func(p model.Pass) bool { return p.ID == id })
}

func (r *Passes) ActiveByUser(_ context.Context, userID uint64) (model.Pass, error) {
	return r.find(func(p model.Pass) bool { return p.UserID == userID && p.Status.Counts() })
}

func (r *Passes) PassCodeTaken(_ context.Context, code string) (bool, error) {
	_, err := r.find(func(p model.Pass) bool { return p.PassCode == code })
	return err == nil, nil
}

func (r *Passes) ListByUser(_ context.Context, userID uint64) ([]model.Pass, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Pass{}
	for _, p := range r.s.passes {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Passes) UpdateStatus(ctx context.Context, id string, status model.PassStatus) error {
	defer r.s.write(ctx)()
	p, ok := r.s.passes[id]
	if !ok {
		return repository.ErrNotFound
	}
	if status.Counts() {
		for k, v := range r.s.passes {
			if k != id && v.UserID == p.UserID && v.Status.Counts() {
				return repository.ErrDuplicate
			}
		}
	}
	p.Status = status
	p.UpdatedAt = r.s.tick()
	r.s.passes[id] = p
	return nil
}

func (r *Passes) AttachTicket(ctx context.Context, transactionID, ticketID string) error {
	defer r.s.write(ctx)()
	for k, p := range r.s.passes {
		if p.TransactionID != nil && *p.TransactionID == transactionID {
			p.TicketID = &ticketID
			r.s.passes[k] = p
		}
	}
	return nil
}

// Count returns how many passes the user holds in any status.
func (r *Passes) Count(userID uint64) int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, p := range r.s.passes {
		if p.UserID == userID {
			n++
		}
	}
	return n
}

// ---- claims ----

type Claims struct{ s *Store }

func (r *Claims) withOwner(c model.PassClaim) model.PassClaim {
	if u, ok := r.s.users[c.UserID]; ok {
		c.ExternalID, c.Email, c.FullName = u.ExternalID, u.Email, u.FullName
	}
	return c
}

func (r *Claims) Create(ctx context.Context, c *model.PassClaim) error {
	defer r.s.write(ctx)()
	if _, ok := r.s.claims[c.ID]; ok {
		return repository.ErrDuplicate
	}
	c.CreatedAt = r.s.tick()
	c.UpdatedAt = c.CreatedAt
	r.s.claims[c.ID] = *c
	return nil
}

func (r *Claims) GetByID(_ context.Context, id string) (model.PassClaim, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.claims[id]
	if !ok {
		return model.PassClaim{}, repository.ErrNotFound
	}
	return r.withOwner(c), nil
}

func (r *Claims) GetByIDForUpdate(ctx context.Context, id string) (model.PassClaim, error) {
	return r.GetByID(ctx, id)
}

func (r *Claims) ListByUser(_ context.Context, userID uint64) ([]model.PassClaim, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.PassClaim{}
	for _, c := range r.s.claims {
		if c.UserID == userID {
			out = append(out, r.withOwner(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Claims) UpdateStatus(ctx context.Context, id string, status model.ClaimStatus, passID *string) error {
	defer r.s.write(ctx)()
	c, ok := r.s.claims[id]
	if !ok || c.Status != model.ClaimPending {
		return repository.ErrConflict
	}
	c.Status = status
	c.PassID = passID
	c.UpdatedAt = r.s.tick()
	r.s.claims[id] = c
	return nil
}

func (r *Claims) ExpirePending(ctx context.Context, userID uint64) (int64, error) {
	defer r.s.write(ctx)()
	now := time.Now().UTC()
	var n int64
	for id, c := range r.s.claims {
		if c.UserID == userID && c.Status == model.ClaimPending && !now.Before(c.ExpiresAt) {
			c.Status = model.ClaimExpired
			r.s.claims[id] = c
			n++
		}
	}
	return n, nil
}

// Backdate moves a claim's expiry into the past.
func (r *Claims) Backdate(id string) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := r.s.claims[id]
	c.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	r.s.claims[id] = c
}
