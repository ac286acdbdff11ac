package transaction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/paylink/reconciler/internal/model"
	"github.com/paylink/reconciler/internal/port/outbound"
)

// --- Mock Implementations ---

// callLog records the order of side effects across fakes.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// memStore is an in-memory TransactionDatabasePort honouring versions.
type memStore struct {
	mu   sync.Mutex
	rows map[string]*model.Transaction
	log  *callLog

	// conflicts makes the next N updates fail with ErrConcurrentModification.
	conflicts int
	updates   int
}

func newMemStore(log *callLog, txs ...*model.Transaction) *memStore {
	s := &memStore{rows: make(map[string]*model.Transaction), log: log}
	for _, tx := range txs {
		s.rows[tx.TransactionID] = cloneTx(tx)
	}
	return s
}

func cloneTx(tx *model.Transaction) *model.Transaction {
	c := *tx
	c.CustomerRefundResponse = append(c.CustomerRefundResponse[:0:0], tx.CustomerRefundResponse...)
	c.MerchantRefundResponse = append(c.MerchantRefundResponse[:0:0], tx.MerchantRefundResponse...)
	if tx.TransactionError != nil {
		te := *tx.TransactionError
		c.TransactionError = &te
	}
	return &c
}

func (s *memStore) get(id string) *model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx, ok := s.rows[id]; ok {
		return cloneTx(tx)
	}
	return nil
}

func (s *memStore) find(match func(tx *model.Transaction) bool) *model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.rows {
		if match(tx) {
			return cloneTx(tx)
		}
	}
	return nil
}

func (s *memStore) Create(ctx context.Context, tx *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[tx.TransactionID]; ok {
		return fmt.Errorf("duplicate transaction %s", tx.TransactionID)
	}
	s.rows[tx.TransactionID] = cloneTx(tx)
	return nil
}

func (s *memStore) FindByID(ctx context.Context, transactionID string) (*model.Transaction, error) {
	return s.get(transactionID), nil
}

func (s *memStore) FindByCorrelationID(ctx context.Context, correlationID string) (*model.Transaction, error) {
	return s.find(func(tx *model.Transaction) bool {
		return tx.UniqueID == correlationID || tx.ExternalID == correlationID
	}), nil
}

func (s *memStore) FindBySettlementID(ctx context.Context, settlementID string) (*model.Transaction, error) {
	return s.find(func(tx *model.Transaction) bool { return tx.SettlementID == settlementID }), nil
}

func (s *memStore) FindByCustomerRefundID(ctx context.Context, refundID string) (*model.Transaction, error) {
	return s.find(func(tx *model.Transaction) bool {
		_, inHistory := tx.FindCustomerRefund(refundID)
		return tx.CustomerRefundID == refundID || inHistory
	}), nil
}

func (s *memStore) FindByMerchantRefundID(ctx context.Context, refundID string) (*model.Transaction, error) {
	return s.find(func(tx *model.Transaction) bool {
		_, inHistory := tx.FindMerchantRefund(refundID)
		return tx.MerchantRefundID == refundID || inHistory
	}), nil
}

func (s *memStore) UpdateIfVersion(ctx context.Context, tx *model.Transaction, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts > 0 {
		s.conflicts--
		return outbound.ErrConcurrentModification
	}
	current, ok := s.rows[tx.TransactionID]
	if !ok || current.Version != expectedVersion {
		return outbound.ErrConcurrentModification
	}
	tx.Version = expectedVersion + 1
	s.rows[tx.TransactionID] = cloneTx(tx)
	s.updates++
	if s.log != nil {
		s.log.add("update:" + string(tx.Status))
	}
	return nil
}

// memLinks is an in-memory LinkingRecordPort.
type memLinks struct {
	mu      sync.Mutex
	records map[string]*model.LinkingRecord
	log     *callLog
}

func newMemLinks(log *callLog) *memLinks {
	return &memLinks{records: make(map[string]*model.LinkingRecord), log: log}
}

func (l *memLinks) Create(ctx context.Context, record *model.LinkingRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[record.ID]; ok {
		return outbound.ErrLinkingRecordExists
	}
	r := *record
	l.records[record.ID] = &r
	l.log.add("link:create:" + string(record.Leg))
	return nil
}

func (l *memLinks) Get(ctx context.Context, id string) (*model.LinkingRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.records[id]; ok {
		c := *r
		return &c, nil
	}
	return nil, nil
}

func (l *memLinks) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[id]; ok {
		l.log.add("link:delete")
	}
	delete(l.records, id)
	return nil
}

func (l *memLinks) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

type countingLock struct {
	mu       sync.Mutex
	acquired int
	err      error
}

func (l *countingLock) Acquire(ctx context.Context, key string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.mu.Lock()
	l.acquired++
	l.mu.Unlock()
	return func() {}, nil
}

type MockProviderAdapter struct {
	mock.Mock
	rail model.PaymentMethod
	log  *callLog
}

func (m *MockProviderAdapter) Rail() model.PaymentMethod {
	return m.rail
}

func (m *MockProviderAdapter) InitiatePayment(ctx context.Context, amount, currency, payerRef, reference string) (string, error) {
	args := m.Called(ctx, amount, currency, payerRef, reference)
	return args.String(0), args.Error(1)
}

func (m *MockProviderAdapter) CheckStatus(ctx context.Context, correlationID string, leg model.Leg) (*model.ProviderStatus, error) {
	args := m.Called(ctx, correlationID, leg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ProviderStatus), args.Error(1)
}

func (m *MockProviderAdapter) InitiateTransfer(ctx context.Context, req outbound.TransferRequest) (string, error) {
	if m.log != nil {
		m.log.add("transfer:" + string(req.Leg))
	}
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockProviderAdapter) NotifyCounterparty(ctx context.Context, event *model.ProviderStatusEvent, leg model.Leg) error {
	args := m.Called(ctx, event, leg)
	return args.Error(0)
}

type mapRegistry map[model.PaymentMethod]outbound.ProviderAdapterPort

func (r mapRegistry) Get(rail model.PaymentMethod) (outbound.ProviderAdapterPort, error) {
	if a, ok := r[rail]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("rail %s not registered", rail)
}

func (r mapRegistry) Rails() []model.PaymentMethod {
	rails := make([]model.PaymentMethod, 0, len(r))
	for rail := range r {
		rails = append(rails, rail)
	}
	return rails
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.TransactionEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event *model.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) statuses() []model.TransactionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.TransactionStatus, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Status)
	}
	return out
}

type memDeliveries struct {
	mu        sync.Mutex
	created   []*model.WebhookDelivery
	processed map[uuid.UUID]error
}

func (d *memDeliveries) Create(ctx context.Context, delivery *model.WebhookDelivery) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := *delivery
	d.created = append(d.created, &c)
	return nil
}

func (d *memDeliveries) MarkProcessed(ctx context.Context, id uuid.UUID, result *model.WebhookDelivery, processErr error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.processed == nil {
		d.processed = make(map[uuid.UUID]error)
	}
	d.processed[id] = processErr
	return nil
}

type MockArchive struct {
	mock.Mock
}

func (m *MockArchive) Put(ctx context.Context, delivery *model.WebhookDelivery, payload []byte) (string, error) {
	args := m.Called(ctx, delivery, payload)
	return args.String(0), args.Error(1)
}

type countingMetrics struct {
	mu          sync.Mutex
	webhooks    map[string]int
	transitions map[string]int
	mismatches  int
	retries     map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		webhooks:    make(map[string]int),
		transitions: make(map[string]int),
		retries:     make(map[string]int),
	}
}

func (m *countingMetrics) ObserveWebhook(rail, leg, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhooks[outcome]++
}

func (m *countingMetrics) ObserveTransition(from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[from+"->"+to]++
}

func (m *countingMetrics) ObserveStatusMismatch(rail, leg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mismatches++
}

func (m *countingMetrics) ObserveProviderRetry(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries[operation]++
}

// --- Fixtures ---

type fixture struct {
	log        *callLog
	store      *memStore
	links      *memLinks
	lock       *countingLock
	card       *MockProviderAdapter
	mobileA    *MockProviderAdapter
	mobileB    *MockProviderAdapter
	publisher  *recordingPublisher
	deliveries *memDeliveries
	metrics    *countingMetrics
	domain     *transactionDomain
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InstantSettlement = false
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.BaseDelay = 0
	cfg.Retry.MaxDelay = time.Millisecond
	cfg.Retry.Jitter = 0
	return cfg
}

func newFixture(cfg Config, txs ...*model.Transaction) *fixture {
	log := &callLog{}
	f := &fixture{
		log:        log,
		store:      newMemStore(log, txs...),
		links:      newMemLinks(log),
		lock:       &countingLock{},
		card:       &MockProviderAdapter{rail: model.PaymentMethodCard, log: log},
		mobileA:    &MockProviderAdapter{rail: model.PaymentMethodMobileA, log: log},
		mobileB:    &MockProviderAdapter{rail: model.PaymentMethodMobileB, log: log},
		publisher:  &recordingPublisher{},
		deliveries: &memDeliveries{},
		metrics:    newCountingMetrics(),
	}
	registry := mapRegistry{
		model.PaymentMethodCard:    f.card,
		model.PaymentMethodMobileA: f.mobileA,
		model.PaymentMethodMobileB: f.mobileB,
	}
	d, err := NewTransactionDomain(
		f.store,
		f.deliveries,
		f.links,
		f.lock,
		registry,
		f.publisher,
		nil,
		f.metrics,
		cfg,
		zap.NewNop(),
	)
	if err != nil {
		panic(err)
	}
	f.domain = d.(*transactionDomain)
	f.domain.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// paidTx returns a mobile-rail transaction that has been paid but not settled.
func paidTx(id string, amount string) *model.Transaction {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	breakdown, _ := CalculateFee(dec(amount), "UGX", DefaultFeePercentage)
	return &model.Transaction{
		TransactionID:    id,
		Status:           model.TransactionStatusSuccessful,
		Amount:           dec(amount),
		Currency:         "UGX",
		PaymentMethod:    model.PaymentMethodMobileA,
		MerchantID:       "merchant-1",
		MerchantMobileNo: "256700000001",
		CustomerPhone:    "256700000002",
		UniqueID:         id,
		Fee:              breakdown.Fee,
		SettlementAmount: breakdown.Settlement,
		Version:          1,
		CreatedAt:        created,
		UpdatedAt:        created,
	}
}

func webhookBody(externalID, amount, status string) []byte {
	return []byte(fmt.Sprintf(`{"externalId":%q,"amount":%q,"currency":"UGX","status":%q}`, externalID, amount, status))
}

func providerStatus(correlationID string, status model.ProviderStatusValue) *model.ProviderStatus {
	return &model.ProviderStatus{CorrelationID: correlationID, Status: status}
}
