package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fairyhunter13/giftcard-ledger/internal/model"
	"github.com/fairyhunter13/giftcard-ledger/pkg/database"
)

// mockTx is a mock implementation of pgx.Tx for testing transactions.
type mockTx struct {
	commitFn   func(ctx context.Context) error
	rollbackFn func(ctx context.Context) error
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("nested transactions not supported")
}

func (m *mockTx) Commit(ctx context.Context) error {
	if m.commitFn != nil {
		return m.commitFn(ctx)
	}
	return nil
}

func (m *mockTx) Rollback(ctx context.Context) error {
	if m.rollbackFn != nil {
		return m.rollbackFn(ctx)
	}
	return nil
}

func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return nil
}

func (m *mockTx) LargeObjects() pgx.LargeObjects {
	return pgx.LargeObjects{}
}

func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (m *mockTx) Conn() *pgx.Conn {
	return nil
}

// mockTxBeginner is a mock implementation of TxBeginner.
type mockTxBeginner struct {
	beginFn func(ctx context.Context) (pgx.Tx, error)
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.beginFn != nil {
		return m.beginFn(ctx)
	}
	return &mockTx{}, nil
}

// mockBrandRepository is a mock implementation of BrandRepositoryInterface.
type mockBrandRepository struct {
	insertFn           func(ctx context.Context, brand *model.Brand) error
	getByIDFn          func(ctx context.Context, id uuid.UUID) (*model.Brand, error)
	nameTakenFn        func(ctx context.Context, name, slug string, excludeID uuid.UUID) (bool, error)
	updateFn           func(ctx context.Context, brand *model.Brand) error
	listFn             func(ctx context.Context, includeInactive bool) ([]model.Brand, error)
	countActiveCardsFn func(ctx context.Context, id uuid.UUID) (int, error)
	deactivateFn       func(ctx context.Context, id uuid.UUID) error
	deleteFn           func(ctx context.Context, id uuid.UUID) error
}

func (m *mockBrandRepository) Insert(ctx context.Context, brand *model.Brand) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, brand)
	}
	return nil
}

func (m *mockBrandRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Brand, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockBrandRepository) NameTaken(ctx context.Context, name, slug string, excludeID uuid.UUID) (bool, error) {
	if m.nameTakenFn != nil {
		return m.nameTakenFn(ctx, name, slug, excludeID)
	}
	return false, nil
}

func (m *mockBrandRepository) Update(ctx context.Context, brand *model.Brand) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, brand)
	}
	return nil
}

func (m *mockBrandRepository) List(ctx context.Context, includeInactive bool) ([]model.Brand, error) {
	if m.listFn != nil {
		return m.listFn(ctx, includeInactive)
	}
	return []model.Brand{}, nil
}

func (m *mockBrandRepository) CountActiveCards(ctx context.Context, id uuid.UUID) (int, error) {
	if m.countActiveCardsFn != nil {
		return m.countActiveCardsFn(ctx, id)
	}
	return 0, nil
}

func (m *mockBrandRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	if m.deactivateFn != nil {
		return m.deactivateFn(ctx, id)
	}
	return nil
}

func (m *mockBrandRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

// memStore is an in-memory card store with row locks and transactional
// writes, standing in for Postgres in ledger tests. GetForUpdate blocks
// while another transaction holds the card, writes are buffered per
// transaction and applied on Commit.
type memStore struct {
	mu      sync.Mutex
	cards   map[uuid.UUID]model.GiftCard
	entries map[uuid.UUID][]model.Transaction
	changes map[uuid.UUID][]model.StatusChange
	locks   map[uuid.UUID]*sync.Mutex

	// hooks
	existsByNumberFn func(cardNumber string) bool
	insertCardFn     func(card *model.GiftCard) error
	insertEntryFn    func(entry *model.Transaction) error
	saveFn           func(card *model.GiftCard) error
}

func newMemStore() *memStore {
	return &memStore{
		cards:   make(map[uuid.UUID]model.GiftCard),
		entries: make(map[uuid.UUID][]model.Transaction),
		changes: make(map[uuid.UUID][]model.StatusChange),
		locks:   make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *memStore) stores(brands BrandRepositoryInterface) Stores {
	return Stores{
		Brands:        brands,
		Cards:         memCards{s},
		Transactions:  memTransactions{s},
		StatusChanges: memStatusChanges{s},
	}
}

func (s *memStore) Begin(ctx context.Context) (pgx.Tx, error) {
	return &memTx{store: s}, nil
}

func (s *memStore) lockFor(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *memStore) card(id uuid.UUID) model.GiftCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cards[id]
}

func (s *memStore) ledger(id uuid.UUID) []model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Transaction(nil), s.entries[id]...)
}

func (s *memStore) history(id uuid.UUID) []model.StatusChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.StatusChange(nil), s.changes[id]...)
}

// memTx buffers writes until Commit and releases held row locks on
// Commit or Rollback, whichever comes first.
type memTx struct {
	mockTx
	store   *memStore
	held    []*sync.Mutex
	cards   []model.GiftCard
	entries []model.Transaction
	changes []model.StatusChange
	done    bool
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return errors.New("tx closed")
	}
	t.store.mu.Lock()
	for _, c := range t.cards {
		t.store.cards[c.ID] = c
	}
	for _, e := range t.entries {
		t.store.entries[e.CardID] = append(t.store.entries[e.CardID], e)
	}
	for _, c := range t.changes {
		t.store.changes[c.CardID] = append(t.store.changes[c.CardID], c)
	}
	t.store.mu.Unlock()
	t.release()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.release()
	return nil
}

func (t *memTx) release() {
	if t.done {
		return
	}
	t.done = true
	for _, l := range t.held {
		l.Unlock()
	}
}

func asMemTx(q database.TxQuerier) *memTx {
	return q.(*memTx)
}

type memCards struct{ s *memStore }

func (m memCards) Insert(ctx context.Context, tx database.TxQuerier, card *model.GiftCard) error {
	if m.s.insertCardFn != nil {
		if err := m.s.insertCardFn(card); err != nil {
			return err
		}
	}
	m.s.mu.Lock()
	for _, c := range m.s.cards {
		if c.CardNumber == card.CardNumber || c.CardCode == card.CardCode {
			m.s.mu.Unlock()
			return ErrDuplicateIdentifier
		}
	}
	m.s.mu.Unlock()
	card.UpdatedAt = card.IssuedAt
	t := asMemTx(tx)
	t.cards = append(t.cards, *card)
	return nil
}

func (m memCards) ExistsByNumber(ctx context.Context, cardNumber string) (bool, error) {
	if m.s.existsByNumberFn != nil {
		return m.s.existsByNumberFn(cardNumber), nil
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, c := range m.s.cards {
		if c.CardNumber == cardNumber {
			return true, nil
		}
	}
	return false, nil
}

func (m memCards) find(match func(c model.GiftCard) bool) (*model.GiftCard, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, c := range m.s.cards {
		if match(c) {
			found := c
			return &found, nil
		}
	}
	return nil, nil
}

func (m memCards) GetByID(ctx context.Context, id uuid.UUID) (*model.GiftCard, error) {
	return m.find(func(c model.GiftCard) bool { return c.ID == id })
}

func (m memCards) GetByNumber(ctx context.Context, cardNumber string) (*model.GiftCard, error) {
	return m.find(func(c model.GiftCard) bool { return c.CardNumber == cardNumber })
}

func (m memCards) GetByCode(ctx context.Context, code string) (*model.GiftCard, error) {
	return m.find(func(c model.GiftCard) bool { return c.CardCode == code })
}

func (m memCards) GetForUpdate(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (*model.GiftCard, error) {
	l := m.s.lockFor(id)
	l.Lock()
	t := asMemTx(tx)
	t.held = append(t.held, l)

	card, _ := m.GetByID(ctx, id)
	if card == nil {
		return nil, ErrCardNotFound
	}
	return card, nil
}

func (m memCards) Save(ctx context.Context, tx database.TxQuerier, card *model.GiftCard) error {
	if m.s.saveFn != nil {
		if err := m.s.saveFn(card); err != nil {
			return err
		}
	}
	m.s.mu.Lock()
	stored := m.s.cards[card.ID]
	m.s.mu.Unlock()
	if stored.Version != card.Version {
		return ErrConcurrentModified
	}
	card.Version++
	t := asMemTx(tx)
	t.cards = append(t.cards, *card)
	return nil
}

type memTransactions struct{ s *memStore }

func (m memTransactions) Insert(ctx context.Context, tx database.TxQuerier, entry *model.Transaction) error {
	if m.s.insertEntryFn != nil {
		if err := m.s.insertEntryFn(entry); err != nil {
			return err
		}
	}
	t := asMemTx(tx)
	t.entries = append(t.entries, *entry)
	return nil
}

func (m memTransactions) ListByCard(ctx context.Context, cardID uuid.UUID) ([]model.Transaction, error) {
	return m.s.ledger(cardID), nil
}

type memStatusChanges struct{ s *memStore }

func (m memStatusChanges) Insert(ctx context.Context, tx database.TxQuerier, change *model.StatusChange) error {
	t := asMemTx(tx)
	t.changes = append(t.changes, *change)
	return nil
}

func (m memStatusChanges) ListByCard(ctx context.Context, cardID uuid.UUID) ([]model.StatusChange, error) {
	return m.s.history(cardID), nil
}

// mockGuard is a mock implementation of PINAttemptGuard.
type mockGuard struct {
	mu       sync.Mutex
	locked   bool
	lockErr  error
	failures int
	resets   int
}

func (g *mockGuard) Locked(ctx context.Context, cardID uuid.UUID) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.locked, g.lockErr
}

func (g *mockGuard) RecordFailure(ctx context.Context, cardID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures++
	return nil
}

func (g *mockGuard) Reset(ctx context.Context, cardID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resets++
	return nil
}
