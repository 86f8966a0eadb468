package usecase_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"shop/internal/domain/model"
	repo "shop/internal/repository"
)

// =====================
// in-memory ledger（WithinTx はスナップショットに書いて、成功時だけ反映）
// =====================

type ledgerState struct {
	carts      map[string]model.Cart
	cartItems  map[int64]model.CartItem
	products   map[int64]model.Product
	orders     map[int64]model.Order
	orderItems []model.OrderItem
	intents    map[string]model.PaymentIntent
	events     map[string]model.ProcessedEvent
	refunds    []model.Refund
	outbox     []model.OutboxEvent
	audits     []model.AuditLog
	nextID     int64
}

func newLedgerState() *ledgerState {
	return &ledgerState{
		carts:     map[string]model.Cart{},
		cartItems: map[int64]model.CartItem{},
		products:  map[int64]model.Product{},
		orders:    map[int64]model.Order{},
		intents:   map[string]model.PaymentIntent{},
		events:    map[string]model.ProcessedEvent{},
		nextID:    100,
	}
}

func (s *ledgerState) clone() *ledgerState {
	c := &ledgerState{
		carts:      make(map[string]model.Cart, len(s.carts)),
		cartItems:  make(map[int64]model.CartItem, len(s.cartItems)),
		products:   make(map[int64]model.Product, len(s.products)),
		orders:     make(map[int64]model.Order, len(s.orders)),
		orderItems: append([]model.OrderItem(nil), s.orderItems...),
		intents:    make(map[string]model.PaymentIntent, len(s.intents)),
		events:     make(map[string]model.ProcessedEvent, len(s.events)),
		refunds:    append([]model.Refund(nil), s.refunds...),
		outbox:     append([]model.OutboxEvent(nil), s.outbox...),
		audits:     append([]model.AuditLog(nil), s.audits...),
		nextID:     s.nextID,
	}
	for k, v := range s.carts {
		c.carts[k] = v
	}
	for k, v := range s.cartItems {
		c.cartItems[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.intents {
		c.intents[k] = v
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	return c
}

func (s *ledgerState) id() int64 {
	s.nextID++
	return s.nextID
}

// Ledger はトランザクションを1本ずつ直列に流す（行ロックの代わり）。
type Ledger struct {
	mu     sync.Mutex
	st     *ledgerState
	writes int
	fail   map[string]error
}

func NewLedger() *Ledger {
	return &Ledger{st: newLedgerState(), fail: map[string]error{}}
}

func (l *Ledger) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := l.st.clone()
	writes := 0
	r := &memRepos{l: l, st: snap, writes: &writes}
	if err := fn(r); err != nil {
		return err
	}
	*l.st = *snap
	l.writes += writes
	return nil
}

// トランザクション外の repos（呼び出しごとにロック）
func (l *Ledger) Direct() repo.TxRepos {
	return &memRepos{l: l, st: l.st, writes: &l.writes, direct: true}
}

// 次の1回だけ op をエラーにする（"Orders.Create" など）
func (l *Ledger) FailNext(op string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fail[op] = err
}

func (l *Ledger) Writes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writes
}

func (l *Ledger) View(fn func(s *ledgerState)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.st)
}

// =====================
// seed helpers
// =====================

func (l *Ledger) AddProduct(p model.Product) {
	l.View(func(s *ledgerState) { s.products[p.ID] = p })
}

func (l *Ledger) AddCartLine(sessionID string, productID int64, qty int64, snapshot int64) {
	l.View(func(s *ledgerState) {
		c, ok := s.carts[sessionID]
		if !ok {
			c = model.Cart{ID: s.id(), SessionID: sessionID}
			s.carts[sessionID] = c
		}
		id := s.id()
		s.cartItems[id] = model.CartItem{ID: id, CartID: c.ID, ProductID: productID, Quantity: qty, UnitPriceSnapshot: snapshot}
	})
}

func (l *Ledger) AddIntent(pi model.PaymentIntent) {
	l.View(func(s *ledgerState) {
		pi.ID = s.id()
		if pi.UpdatedAt.IsZero() {
			pi.UpdatedAt = time.Now()
		}
		s.intents[pi.IntentID] = pi
	})
}

func (l *Ledger) Orders() []model.Order {
	var out []model.Order
	l.View(func(s *ledgerState) {
		for _, o := range s.orders {
			out = append(out, o)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (l *Ledger) OrderItems(orderID int64) []model.OrderItem {
	var out []model.OrderItem
	l.View(func(s *ledgerState) {
		for _, it := range s.orderItems {
			if it.OrderID == orderID {
				out = append(out, it)
			}
		}
	})
	return out
}

func (l *Ledger) Intent(id string) model.PaymentIntent {
	var pi model.PaymentIntent
	l.View(func(s *ledgerState) { pi = s.intents[id] })
	return pi
}

func (l *Ledger) Intents() []model.PaymentIntent {
	var out []model.PaymentIntent
	l.View(func(s *ledgerState) {
		for _, pi := range s.intents {
			out = append(out, pi)
		}
	})
	return out
}

func (l *Ledger) HasCart(sessionID string) bool {
	var ok bool
	l.View(func(s *ledgerState) { _, ok = s.carts[sessionID] })
	return ok
}

func (l *Ledger) Outbox() []model.OutboxEvent {
	var out []model.OutboxEvent
	l.View(func(s *ledgerState) { out = append(out, s.outbox...) })
	return out
}

func (l *Ledger) Audits() []model.AuditLog {
	var out []model.AuditLog
	l.View(func(s *ledgerState) { out = append(out, s.audits...) })
	return out
}

func (l *Ledger) Refunds() []model.Refund {
	var out []model.Refund
	l.View(func(s *ledgerState) { out = append(out, s.refunds...) })
	return out
}

func (l *Ledger) EventCount() int {
	var n int
	l.View(func(s *ledgerState) { n = len(s.events) })
	return n
}

// =====================
// TxRepos
// =====================

type memRepos struct {
	l      *Ledger
	st     *ledgerState
	writes *int
	direct bool
}

func (r *memRepos) enter(op string) (func(), error) {
	unlock := func() {}
	if r.direct {
		r.l.mu.Lock()
		unlock = r.l.mu.Unlock
	}
	if err, ok := r.l.fail[op]; ok {
		delete(r.l.fail, op)
		return unlock, err
	}
	return unlock, nil
}

func (r *memRepos) wrote() { *r.writes++ }

func (r *memRepos) Carts() repo.CartRepository                     { return memCarts{r} }
func (r *memRepos) CartItems() repo.CartItemRepository             { return memCartItems{r} }
func (r *memRepos) Orders() repo.OrderRepository                   { return memOrders{r} }
func (r *memRepos) OrderItems() repo.OrderItemRepository           { return memOrderItems{r} }
func (r *memRepos) Products() repo.ProductRepository               { return memProducts{r} }
func (r *memRepos) PaymentIntents() repo.PaymentIntentRepository   { return memIntents{r} }
func (r *memRepos) ProcessedEvents() repo.ProcessedEventRepository { return memEvents{r} }
func (r *memRepos) Refunds() repo.RefundRepository                 { return memRefunds{r} }
func (r *memRepos) Outbox() repo.OutboxRepository                  { return memOutbox{r} }
func (r *memRepos) AuditLogs() repo.AuditLogRepository             { return memAudits{r} }

type memCarts struct{ *memRepos }

func (m memCarts) FindBySessionID(ctx context.Context, sessionID string) (model.Cart, error) {
	done, err := m.enter("Carts.FindBySessionID")
	defer done()
	if err != nil {
		return model.Cart{}, err
	}
	c, ok := m.st.carts[sessionID]
	if !ok {
		return model.Cart{}, repo.ErrNotFound
	}
	return c, nil
}

func (m memCarts) GetOrCreateBySessionID(ctx context.Context, sessionID string) (model.Cart, error) {
	done, err := m.enter("Carts.GetOrCreateBySessionID")
	defer done()
	if err != nil {
		return model.Cart{}, err
	}
	if c, ok := m.st.carts[sessionID]; ok {
		return c, nil
	}
	c := model.Cart{ID: m.st.id(), SessionID: sessionID}
	m.st.carts[sessionID] = c
	m.wrote()
	return c, nil
}

func (m memCarts) DeleteBySessionID(ctx context.Context, sessionID string) (bool, error) {
	done, err := m.enter("Carts.DeleteBySessionID")
	defer done()
	if err != nil {
		return false, err
	}
	c, ok := m.st.carts[sessionID]
	if !ok {
		return false, nil
	}
	for id, it := range m.st.cartItems {
		if it.CartID == c.ID {
			delete(m.st.cartItems, id)
		}
	}
	delete(m.st.carts, sessionID)
	m.wrote()
	return true, nil
}

type memCartItems struct{ *memRepos }

func (m memCartItems) ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	done, err := m.enter("CartItems.ListByCartID")
	defer done()
	if err != nil {
		return nil, err
	}
	var out []model.CartItem
	for _, it := range m.st.cartItems {
		if it.CartID == cartID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memCartItems) FindByCartAndProduct(ctx context.Context, cartID int64, productID int64) (model.CartItem, error) {
	done, err := m.enter("CartItems.FindByCartAndProduct")
	defer done()
	if err != nil {
		return model.CartItem{}, err
	}
	for _, it := range m.st.cartItems {
		if it.CartID == cartID && it.ProductID == productID {
			return it, nil
		}
	}
	return model.CartItem{}, repo.ErrNotFound
}

func (m memCartItems) UpsertByCartAndProduct(ctx context.Context, cartID int64, productID int64, addQty int64, unitPriceSnapshot int64) error {
	done, err := m.enter("CartItems.UpsertByCartAndProduct")
	defer done()
	if err != nil {
		return err
	}
	m.wrote()
	for id, it := range m.st.cartItems {
		if it.CartID == cartID && it.ProductID == productID {
			it.Quantity += addQty
			m.st.cartItems[id] = it
			return nil
		}
	}
	id := m.st.id()
	m.st.cartItems[id] = model.CartItem{ID: id, CartID: cartID, ProductID: productID, Quantity: addQty, UnitPriceSnapshot: unitPriceSnapshot}
	return nil
}

func (m memCartItems) UpdateQuantity(ctx context.Context, cartItemID int64, qty int64) error {
	done, err := m.enter("CartItems.UpdateQuantity")
	defer done()
	if err != nil {
		return err
	}
	it, ok := m.st.cartItems[cartItemID]
	if !ok {
		return repo.ErrNotFound
	}
	it.Quantity = qty
	m.st.cartItems[cartItemID] = it
	m.wrote()
	return nil
}

func (m memCartItems) DeleteByID(ctx context.Context, cartItemID int64) error {
	done, err := m.enter("CartItems.DeleteByID")
	defer done()
	if err != nil {
		return err
	}
	if _, ok := m.st.cartItems[cartItemID]; !ok {
		return repo.ErrNotFound
	}
	delete(m.st.cartItems, cartItemID)
	m.wrote()
	return nil
}

type memOrders struct{ *memRepos }

func (m memOrders) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	done, err := m.enter("Orders.FindByID")
	defer done()
	if err != nil {
		return model.Order{}, err
	}
	o, ok := m.st.orders[orderID]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (m memOrders) FindByOrderNumber(ctx context.Context, orderNumber string) (model.Order, error) {
	done, err := m.enter("Orders.FindByOrderNumber")
	defer done()
	if err != nil {
		return model.Order{}, err
	}
	for _, o := range m.st.orders {
		if o.OrderNumber == orderNumber {
			return o, nil
		}
	}
	return model.Order{}, repo.ErrNotFound
}

func (m memOrders) Create(ctx context.Context, order model.Order) (int64, error) {
	done, err := m.enter("Orders.Create")
	defer done()
	if err != nil {
		return 0, err
	}
	for _, o := range m.st.orders {
		if o.OrderNumber == order.OrderNumber {
			return 0, repo.ErrDuplicate
		}
		if order.PaymentIntentID != nil && o.PaymentIntentID != nil && *o.PaymentIntentID == *order.PaymentIntentID {
			return 0, repo.ErrDuplicate
		}
	}
	order.ID = m.st.id()
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	m.st.orders[order.ID] = order
	m.wrote()
	return order.ID, nil
}

func (m memOrders) update(op string, orderID int64, fn func(o *model.Order)) error {
	done, err := m.enter(op)
	defer done()
	if err != nil {
		return err
	}
	o, ok := m.st.orders[orderID]
	if !ok {
		return repo.ErrNotFound
	}
	fn(&o)
	o.UpdatedAt = time.Now()
	m.st.orders[orderID] = o
	m.wrote()
	return nil
}

func (m memOrders) UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	return m.update("Orders.UpdateStatus", orderID, func(o *model.Order) { o.Status = status })
}

func (m memOrders) MarkPaid(ctx context.Context, orderID int64, paidAt time.Time) error {
	return m.update("Orders.MarkPaid", orderID, func(o *model.Order) {
		o.Status = model.OrderStatusPaid
		o.PaidAt = &paidAt
	})
}

func (m memOrders) AttachPaymentIntent(ctx context.Context, orderID int64, intentID string) error {
	return m.update("Orders.AttachPaymentIntent", orderID, func(o *model.Order) { o.PaymentIntentID = &intentID })
}

func (m memOrders) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	done, err := m.enter("Orders.ListAdmin")
	defer done()
	if err != nil {
		return nil, 0, err
	}
	var all []model.Order
	for _, o := range m.st.orders {
		if f.Status != "" && string(o.Status) != f.Status {
			continue
		}
		all = append(all, o)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := int64(len(all))
	start := (f.Page - 1) * f.Limit
	if start >= len(all) {
		return []model.Order{}, total, nil
	}
	end := start + f.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

type memOrderItems struct{ *memRepos }

func (m memOrderItems) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	done, err := m.enter("OrderItems.CreateBulk")
	defer done()
	if err != nil {
		return err
	}
	for _, it := range items {
		it.ID = m.st.id()
		it.OrderID = orderID
		m.st.orderItems = append(m.st.orderItems, it)
	}
	m.wrote()
	return nil
}

func (m memOrderItems) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	done, err := m.enter("OrderItems.ListByOrderID")
	defer done()
	if err != nil {
		return nil, err
	}
	var out []model.OrderItem
	for _, it := range m.st.orderItems {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out, nil
}

type memProducts struct{ *memRepos }

func (m memProducts) FindByID(ctx context.Context, id int64) (model.Product, error) {
	done, err := m.enter("Products.FindByID")
	defer done()
	if err != nil {
		return model.Product{}, err
	}
	p, ok := m.st.products[id]
	if !ok {
		return model.Product{}, repo.ErrNotFound
	}
	return p, nil
}

type memIntents struct{ *memRepos }

func (m memIntents) Create(ctx context.Context, p model.PaymentIntent) error {
	done, err := m.enter("PaymentIntents.Create")
	defer done()
	if err != nil {
		return err
	}
	if _, ok := m.st.intents[p.IntentID]; ok {
		return repo.ErrDuplicate
	}
	p.ID = m.st.id()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.st.intents[p.IntentID] = p
	m.wrote()
	return nil
}

func (m memIntents) FindByIntentID(ctx context.Context, intentID string) (model.PaymentIntent, error) {
	done, err := m.enter("PaymentIntents.FindByIntentID")
	defer done()
	if err != nil {
		return model.PaymentIntent{}, err
	}
	p, ok := m.st.intents[intentID]
	if !ok {
		return model.PaymentIntent{}, repo.ErrNotFound
	}
	return p, nil
}

func (m memIntents) FindByIntentIDForUpdate(ctx context.Context, intentID string) (model.PaymentIntent, error) {
	return m.FindByIntentID(ctx, intentID)
}

func (m memIntents) TransitionFromPending(ctx context.Context, intentID string, to model.PaymentStatus, orderID *int64) (bool, error) {
	done, err := m.enter("PaymentIntents.TransitionFromPending")
	defer done()
	if err != nil {
		return false, err
	}
	p, ok := m.st.intents[intentID]
	if !ok || p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = to
	if orderID != nil {
		id := *orderID
		p.OrderID = &id
	}
	p.UpdatedAt = time.Now()
	m.st.intents[intentID] = p
	m.wrote()
	return true, nil
}

type memEvents struct{ *memRepos }

func (m memEvents) Exists(ctx context.Context, eventID string) (bool, error) {
	done, err := m.enter("ProcessedEvents.Exists")
	defer done()
	if err != nil {
		return false, err
	}
	_, ok := m.st.events[eventID]
	return ok, nil
}

func (m memEvents) Create(ctx context.Context, e model.ProcessedEvent) error {
	done, err := m.enter("ProcessedEvents.Create")
	defer done()
	if err != nil {
		return err
	}
	if _, ok := m.st.events[e.ID]; ok {
		return repo.ErrDuplicate
	}
	m.st.events[e.ID] = e
	m.wrote()
	return nil
}

type memRefunds struct{ *memRepos }

func (m memRefunds) Create(ctx context.Context, rf model.Refund) error {
	done, err := m.enter("Refunds.Create")
	defer done()
	if err != nil {
		return err
	}
	for _, x := range m.st.refunds {
		if x.GatewayRefundID == rf.GatewayRefundID {
			return repo.ErrDuplicate
		}
	}
	rf.ID = m.st.id()
	m.st.refunds = append(m.st.refunds, rf)
	m.wrote()
	return nil
}

func (m memRefunds) ListByIntentID(ctx context.Context, intentID string) ([]model.Refund, error) {
	done, err := m.enter("Refunds.ListByIntentID")
	defer done()
	if err != nil {
		return nil, err
	}
	var out []model.Refund
	for _, x := range m.st.refunds {
		if x.IntentID == intentID {
			out = append(out, x)
		}
	}
	return out, nil
}

type memOutbox struct{ *memRepos }

func (m memOutbox) Create(ctx context.Context, e model.OutboxEvent) error {
	done, err := m.enter("Outbox.Create")
	defer done()
	if err != nil {
		return err
	}
	e.ID = m.st.id()
	m.st.outbox = append(m.st.outbox, e)
	m.wrote()
	return nil
}

func (m memOutbox) ListUnpublished(ctx context.Context, limit int, maxAttempts int) ([]model.OutboxEvent, error) {
	panic("not used in usecase tests")
}

func (m memOutbox) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	panic("not used in usecase tests")
}

func (m memOutbox) MarkFailed(ctx context.Context, id int64, lastErr string) error {
	panic("not used in usecase tests")
}

type memAudits struct{ *memRepos }

func (m memAudits) Create(ctx context.Context, log model.AuditLog) error {
	done, err := m.enter("AuditLogs.Create")
	defer done()
	if err != nil {
		return err
	}
	log.ID = m.st.id()
	m.st.audits = append(m.st.audits, log)
	m.wrote()
	return nil
}

func (m memAudits) List(ctx context.Context, filter repo.AuditLogFilter) ([]model.AuditLog, error) {
	panic("not used in usecase tests")
}
