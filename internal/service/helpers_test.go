package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"grocery-orders/internal/gateway"
	"grocery-orders/internal/models"
	"grocery-orders/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	testNow  = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	testDate = time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeGateway struct {
	mu       sync.Mutex
	err      error
	calls    int
	amounts  []int64
	metadata []map[string]string
}

func (g *fakeGateway) CreateIntent(_ context.Context, amountMinor int64, _ string, metadata map[string]string) (*gateway.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	g.amounts = append(g.amounts, amountMinor)
	g.metadata = append(g.metadata, metadata)
	id := "pi_test_" + string(rune('0'+g.calls))
	return &gateway.Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (g *fakeGateway) ParseEvent([]byte, string) (*gateway.Event, error) {
	return nil, errors.New("not supported")
}

type fakeGuard struct {
	mu    sync.Mutex
	locks map[int64]string
	saved map[string][]byte
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{locks: map[int64]string{}, saved: map[string][]byte{}}
}

func (g *fakeGuard) AcquireCheckoutLock(_ context.Context, userID int64, _ time.Duration) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.locks[userID]; held {
		return "", false, nil
	}
	g.locks[userID] = "token"
	return "token", true, nil
}

func (g *fakeGuard) ReleaseCheckoutLock(_ context.Context, userID int64, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.locks[userID] == token {
		delete(g.locks, userID)
	}
	return nil
}

func (g *fakeGuard) GetIdempotentResponse(_ context.Context, userID int64, key string) ([]byte, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.saved[key]
	return v, ok, nil
}

func (g *fakeGuard) SaveIdempotentResponse(_ context.Context, userID int64, key string, payload []byte, _ time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.saved[key] = payload
	return nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	placed    []*models.OrderPlacedEvent
	changed   []*models.OrderStatusChangedEvent
	confirmed []*models.PaymentConfirmedEvent
}

func (p *recordingPublisher) PublishOrderPlaced(_ context.Context, e *models.OrderPlacedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placed = append(p.placed, e)
	return nil
}

func (p *recordingPublisher) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, e)
	return nil
}

func (p *recordingPublisher) PublishPaymentConfirmed(_ context.Context, e *models.PaymentConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmed = append(p.confirmed, e)
	return nil
}

// failingRepo injects write failures into every transaction it opens.
// err fails ClearCart; itemErr fails CreateOrderItem once itemsOK items were written.
type failingRepo struct {
	store.Repository
	err     error
	itemErr error
	itemsOK int
}

func (r *failingRepo) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return r.Repository.WithTx(ctx, func(tx store.Tx) error {
		return fn(&failingTx{Tx: tx, repo: r})
	})
}

type failingTx struct {
	store.Tx
	repo  *failingRepo
	items int
}

func (t *failingTx) ClearCart(ctx context.Context, userID int64) (int64, error) {
	if t.repo.err != nil {
		return 0, t.repo.err
	}
	return t.Tx.ClearCart(ctx, userID)
}

func (t *failingTx) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	if t.repo.itemErr != nil && t.items >= t.repo.itemsOK {
		return t.repo.itemErr
	}
	t.items++
	return t.Tx.CreateOrderItem(ctx, item)
}

type fixture struct {
	mem       *store.Memory
	gw        *fakeGateway
	guard     *fakeGuard
	events    *recordingPublisher
	payments  *PaymentService
	orders    *OrderService
	seq       int
	apples    int64
	bananas   int64
	checkout  CheckoutRequest
	reconcile *PaymentReconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		mem:    store.NewMemory(),
		gw:     &fakeGateway{},
		guard:  newFakeGuard(),
		events: &recordingPublisher{},
	}
	clock := testNow
	f.mem.SetClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})

	f.payments = f.newPaymentService(f.mem)
	f.orders = NewOrderService(f.mem, f.events)
	f.orders.now = func() time.Time { return testNow }
	f.reconcile = NewPaymentReconciler(f.mem, f.payments)

	f.apples = f.mem.AddProduct("Apples", dec("10.00"), decimal.Zero)
	f.bananas = f.mem.AddProduct("Bananas", dec("3.00"), dec("2.50"))
	f.checkout = CheckoutRequest{DeliveryDate: testDate, DeliveryTime: "10:00 AM - 12:00 PM", ShopperID: "shopper-7"}
	return f
}

func (f *fixture) newPaymentService(repo store.Repository) *PaymentService {
	s := NewPaymentService(repo, f.gw, f.guard, f.events, PaymentConfig{
		Rates:           Rates{TaxRate: dec("0.08"), DeliveryCharge: dec("5.00")},
		Currency:        "usd",
		CheckoutLockTTL: 30 * time.Second,
		IdempotencyTTL:  24 * time.Hour,
	})
	s.now = func() time.Time { return testNow }
	s.newOrderNumber = func() string {
		f.seq++
		return "ORD-TEST" + string(rune('A'+f.seq))
	}
	return s
}

// placeOrder checks out the user's current cart.
func (f *fixture) placeOrder(t *testing.T, userID int64) *PaymentIntentResult {
	t.Helper()
	res, err := f.payments.InitiatePayment(context.Background(), userID, f.checkout, "")
	require.NoError(t, err)
	return res
}
