package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/dates"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/reservation"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/models"
	repositories "github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/repository"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/statemachine"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	today    = "2026-03-10"
	tomorrow = "2026-03-11"
)

func fixedClock() dates.Clock {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	return dates.NewClock(time.UTC, func() time.Time { return now })
}

// --- menu ledger ---

type ledgerRow struct{ available, sold int }

type memLedger struct {
	mu      sync.Mutex
	rows    map[string]*ledgerRow
	ops     map[string]bool
	fail    map[string]error // "item+" or "item-"
	checkFn func() error
	adjusts int
}

func newMemLedger() *memLedger {
	return &memLedger{rows: map[string]*ledgerRow{}, ops: map[string]bool{}, fail: map[string]error{}}
}

func (m *memLedger) set(date, item string, available, sold int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[date+"/"+item] = &ledgerRow{available: available, sold: sold}
}

func (m *memLedger) sold(date, item string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[date+"/"+item].sold
}

func (m *memLedger) adjustCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adjusts
}

func (m *memLedger) CheckAvailability(_ context.Context, date, item string, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.checkFn != nil {
		if err := m.checkFn(); err != nil {
			return false, err
		}
	}
	r, ok := m.rows[date+"/"+item]
	if !ok {
		return false, nil
	}
	return r.available-r.sold >= qty, nil
}

func (m *memLedger) AdjustSold(_ context.Context, adj reservation.AdjustRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adjusts++
	sign := "+"
	if adj.Delta < 0 {
		sign = "-"
	}
	if err := m.fail[adj.FoodItemID+sign]; err != nil {
		return err
	}
	opKey := fmt.Sprintf("%s|%s|%s", adj.OperationID, adj.Date, adj.FoodItemID)
	reverses := ""
	if base, ok := reservation.ReversedOperationID(adj.OperationID); ok {
		reverses = fmt.Sprintf("%s|%s|%s", base, adj.Date, adj.FoodItemID)
		if !m.ops[reverses] {
			return nil
		}
	} else if adj.OperationID != "" && m.ops[opKey] {
		return nil
	}
	r, ok := m.rows[adj.Date+"/"+adj.FoodItemID]
	if !ok {
		return reservation.ErrRecordNotFound
	}
	if adj.Delta > 0 && r.available-r.sold < adj.Delta {
		return reservation.ErrInsufficientQuantity
	}
	if adj.Delta < 0 && r.sold+adj.Delta < 0 {
		return reservation.ErrInsufficientQuantity
	}
	r.sold += adj.Delta
	switch {
	case reverses != "":
		delete(m.ops, reverses)
	case adj.OperationID != "":
		m.ops[opKey] = true
	}
	return nil
}

// --- orders ---

type memOrders struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]*models.Order
	history   []models.OrderStatusChange
	createErr error
}

func newMemOrders() *memOrders {
	return &memOrders{orders: map[uuid.UUID]*models.Order{}}
}

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Lines = append([]models.OrderLine(nil), o.Lines...)
	return &cp
}

func (m *memOrders) Create(_ context.Context, order *models.Order, change *models.OrderStatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.orders[order.ID] = cloneOrder(order)
	if change != nil {
		change.OrderID = order.ID
		m.history = append(m.history, *change)
	}
	return nil
}

func (m *memOrders) put(o *models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = cloneOrder(o)
}

func (m *memOrders) get(id uuid.UUID) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneOrder(m.orders[id])
}

func (m *memOrders) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *memOrders) List(_ context.Context, f repositories.ListFilter, page, limit int) ([]models.Order, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, *cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, int64(len(out)), nil
}

func (m *memOrders) UpdateStatus(_ context.Context, id uuid.UUID, from, to statemachine.Status, notes string, change *models.OrderStatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if o.Status != from {
		return repositories.ErrStatusConflict
	}
	o.Status = to
	o.Notes = notes
	if change != nil {
		change.OrderID = id
		m.history = append(m.history, *change)
	}
	return nil
}

func (m *memOrders) UpdatePaymentStatus(_ context.Context, id uuid.UUID, status models.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return repositories.ErrNotFound
	}
	o.PaymentStatus = status
	return nil
}

func (m *memOrders) History(_ context.Context, id uuid.UUID) ([]models.OrderStatusChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OrderStatusChange
	for _, c := range m.history {
		if c.OrderID == id {
			out = append(out, c)
		}
	}
	return out, nil
}

// --- compensation store ---

type memCompensations struct {
	mu   sync.Mutex
	recs map[uuid.UUID]*models.CompensationRecord
}

func newMemCompensations() *memCompensations {
	return &memCompensations{recs: map[uuid.UUID]*models.CompensationRecord{}}
}

func (m *memCompensations) Record(_ context.Context, f reservation.CompensationFailure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	rec := &models.CompensationRecord{
		ID: id, OrderID: f.OrderID, MenuDate: f.Date, FoodItemID: f.FoodItemID,
		Delta: f.Delta, OperationID: f.OperationID, Status: models.CompensationPending,
	}
	if f.Err != nil {
		rec.LastError = f.Err.Error()
	}
	m.recs[id] = rec
	return nil
}

func (m *memCompensations) all() []models.CompensationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CompensationRecord
	for _, r := range m.recs {
		out = append(out, *r)
	}
	return out
}

func (m *memCompensations) Get(_ context.Context, id uuid.UUID) (*models.CompensationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	if !ok {
		return nil, repositories.ErrCompensationNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memCompensations) List(_ context.Context, status string, _ int) ([]models.CompensationRecord, error) {
	var out []models.CompensationRecord
	for _, r := range m.all() {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memCompensations) Due(_ context.Context, maxAttempts, _ int) ([]models.CompensationRecord, error) {
	var out []models.CompensationRecord
	for _, r := range m.all() {
		if r.Status == models.CompensationPending && r.Attempts < maxAttempts {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memCompensations) MarkResolved(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	if !ok {
		return repositories.ErrCompensationNotFound
	}
	now := time.Now()
	r.Status = models.CompensationResolved
	r.Attempts++
	r.ResolvedAt = &now
	r.LastError = ""
	return nil
}

func (m *memCompensations) MarkFailed(_ context.Context, id uuid.UUID, cause error, abandon bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	if !ok {
		return repositories.ErrCompensationNotFound
	}
	r.Attempts++
	r.LastError = cause.Error()
	if abandon {
		r.Status = models.CompensationAbandoned
	}
	return nil
}

// --- publishers ---

type recordingProducer struct {
	mu     sync.Mutex
	events []models.OrderEvent
}

func (p *recordingProducer) PublishOrderEvent(_ context.Context, evt models.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func (p *recordingProducer) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingNotifier struct {
	mu    sync.Mutex
	types []string
	err   error
}

func (n *recordingNotifier) PublishEvent(_ context.Context, _, eventType string, _ any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.types = append(n.types, eventType)
	return n.err
}

// --- harness ---

type harness struct {
	svc      *OrderService
	ledger   *memLedger
	orders   *memOrders
	comps    *memCompensations
	events   *recordingProducer
	notifier *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := &harness{
		ledger:   newMemLedger(),
		orders:   newMemOrders(),
		comps:    newMemCompensations(),
		events:   &recordingProducer{},
		notifier: &recordingNotifier{},
	}
	h.svc = NewOrderService(Dependencies{
		Orders:         h.orders,
		Idempotency:    repositories.NewRedisIdempotencyStore(rdb, time.Hour, time.Minute),
		Coordinator:    reservation.NewCoordinator(h.ledger, h.comps, zap.NewNop()),
		Clock:          fixedClock(),
		Events:         h.events,
		Notifier:       h.notifier,
		NotifyTopicArn: "arn:aws:sns:eu-west-2:000000000000:order-events",
		Logger:         zap.NewNop(),
	})
	h.svc.async = func(f func()) { f() }
	return h
}

var errMenuDown = errors.New("menu service unreachable")
