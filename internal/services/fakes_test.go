package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"payment-engine/internal/gateway"
	"payment-engine/internal/locks"
	"payment-engine/internal/models"
)

// Stateful in-memory stores backing the service tests. They implement the
// same store interfaces the repositories do, with just enough behavior to
// exercise the services: idempotency-key dedup on ledger writes, version
// bumps on guarded updates, and models.ErrNotFound for missing rows.

type fakeLedgerStore struct {
	mu            sync.Mutex
	system        map[models.AccountType]*models.LedgerAccount
	users         map[uuid.UUID]*models.LedgerAccount
	entries       []models.LedgerEntry
	byKey         map[string]int
	recordErr     error
	recordErrLeft int

	// enforceBalances applies the repository's net-debit check so tests
	// can trip the overdraft guard. Off by default since most flow tests
	// do not seed opening balances.
	enforceBalances bool
}

func newFakeLedgerStore() *fakeLedgerStore {
	s := &fakeLedgerStore{
		system: make(map[models.AccountType]*models.LedgerAccount),
		users:  make(map[uuid.UUID]*models.LedgerAccount),
		byKey:  make(map[string]int),
	}
	for _, t := range []models.AccountType{
		models.AccountExternalStripe,
		models.AccountPlatformEscrow,
		models.AccountPlatformRevenue,
	} {
		s.system[t] = &models.LedgerAccount{
			ID:            uuid.New(),
			AccountType:   t,
			Currency:      "USD",
			AllowNegative: t == models.AccountExternalStripe,
		}
	}
	return s
}

// failRecordOnce makes the next RecordEntries call return err.
func (s *fakeLedgerStore) failRecordOnce(err error) {
	s.recordErr = err
	s.recordErrLeft = 1
}

func (s *fakeLedgerStore) GetSystemAccount(ctx context.Context, accountType models.AccountType) (*models.LedgerAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.system[accountType]
	if !ok {
		return nil, models.ErrNotFound
	}
	return account, nil
}

func (s *fakeLedgerStore) GetOrCreateUserAccount(ctx context.Context, ownerID uuid.UUID, currency string) (*models.LedgerAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account, ok := s.users[ownerID]; ok {
		return account, nil
	}
	owner := ownerID
	account := &models.LedgerAccount{
		ID:          uuid.New(),
		AccountType: models.AccountUserBalance,
		OwnerID:     &owner,
		Currency:    currency,
	}
	s.users[ownerID] = account
	return account, nil
}

func (s *fakeLedgerStore) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var balance int64
	for _, e := range s.entries {
		if e.CreditAccountID == accountID {
			balance += e.AmountCents
		}
		if e.DebitAccountID == accountID {
			balance -= e.AmountCents
		}
	}
	return balance, nil
}

func (s *fakeLedgerStore) RecordEntries(ctx context.Context, entries []models.LedgerEntry) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErrLeft > 0 {
		s.recordErrLeft--
		return nil, s.recordErr
	}
	if s.enforceBalances {
		if err := s.checkOverdraft(entries); err != nil {
			return nil, err
		}
	}
	result := make([]models.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		if idx, ok := s.byKey[e.IdempotencyKey]; ok {
			result = append(result, s.entries[idx])
			continue
		}
		e.ID = uuid.New()
		e.CreatedAt = time.Now()
		s.byKey[e.IdempotencyKey] = len(s.entries)
		s.entries = append(s.entries, e)
		result = append(result, e)
	}
	return result, nil
}

func (s *fakeLedgerStore) checkOverdraft(entries []models.LedgerEntry) error {
	netDebit := make(map[uuid.UUID]int64)
	for _, e := range entries {
		if _, ok := s.byKey[e.IdempotencyKey]; ok {
			continue
		}
		netDebit[e.DebitAccountID] += e.AmountCents
		netDebit[e.CreditAccountID] -= e.AmountCents
	}
	for accountID, debit := range netDebit {
		if debit <= 0 {
			continue
		}
		account := s.accountByID(accountID)
		if account == nil {
			return models.ErrNotFound
		}
		if account.AllowNegative {
			continue
		}
		var balance int64
		for _, e := range s.entries {
			if e.CreditAccountID == accountID {
				balance += e.AmountCents
			}
			if e.DebitAccountID == accountID {
				balance -= e.AmountCents
			}
		}
		if balance-debit < 0 {
			return &models.InsufficientFundsError{
				AccountID: accountID,
				Account:   string(account.AccountType),
				Balance:   balance,
				Debit:     debit,
			}
		}
	}
	return nil
}

func (s *fakeLedgerStore) accountByID(accountID uuid.UUID) *models.LedgerAccount {
	for _, account := range s.system {
		if account.ID == accountID {
			return account
		}
	}
	for _, account := range s.users {
		if account.ID == accountID {
			return account
		}
	}
	return nil
}

func (s *fakeLedgerStore) EntriesByIdempotencyKeys(ctx context.Context, keys []string) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.LedgerEntry
	for _, key := range keys {
		if idx, ok := s.byKey[key]; ok {
			result = append(result, s.entries[idx])
		}
	}
	return result, nil
}

func (s *fakeLedgerStore) EntriesForOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.LedgerEntry
	for _, e := range s.entries {
		if e.PaymentOrderID != nil && *e.PaymentOrderID == orderID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *fakeLedgerStore) entryByKey(key string) (models.LedgerEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byKey[key]
	if !ok {
		return models.LedgerEntry{}, false
	}
	return s.entries[idx], true
}

type fakeOrderStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*models.PaymentOrder
	holds  map[uuid.UUID]*models.FundHold
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		orders: make(map[uuid.UUID]*models.PaymentOrder),
		holds:  make(map[uuid.UUID]*models.FundHold),
	}
}

func (s *fakeOrderStore) put(order *models.PaymentOrder) *models.PaymentOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	s.orders[order.ID] = order
	return order
}

func (s *fakeOrderStore) Create(ctx context.Context, order *models.PaymentOrder) error {
	s.put(order)
	return nil
}

func (s *fakeOrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*models.PaymentOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return order, nil
}

func (s *fakeOrderStore) GetByIntentID(ctx context.Context, intentID string) (*models.PaymentOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.orders {
		if order.ProcessorIntentID == intentID {
			return order, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *fakeOrderStore) GetByInvoiceID(ctx context.Context, invoiceID string) (*models.PaymentOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.orders {
		if order.ProcessorInvoiceID == invoiceID {
			return order, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *fakeOrderStore) Update(ctx context.Context, order *models.PaymentOrder) error {
	s.put(order)
	return nil
}

func (s *fakeOrderStore) UpdateGuarded(ctx context.Context, order *models.PaymentOrder) error {
	order.Version++
	s.put(order)
	return nil
}

func (s *fakeOrderStore) StuckProcessing(ctx context.Context, olderThan, lookback time.Time, limit int) ([]models.PaymentOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.PaymentOrder
	for _, order := range s.orders {
		if (order.State == models.OrderPending || order.State == models.OrderProcessing) && order.CreatedAt.Before(olderThan) {
			result = append(result, *order)
		}
	}
	return result, nil
}

func (s *fakeOrderStore) CreateHold(ctx context.Context, hold *models.FundHold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hold.ID == uuid.Nil {
		hold.ID = uuid.New()
	}
	s.holds[hold.PaymentOrderID] = hold
	return nil
}

func (s *fakeOrderStore) GetHoldByOrder(ctx context.Context, orderID uuid.UUID) (*models.FundHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold, ok := s.holds[orderID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return hold, nil
}

func (s *fakeOrderStore) UpdateHold(ctx context.Context, hold *models.FundHold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holds[hold.PaymentOrderID] = hold
	return nil
}

func (s *fakeOrderStore) ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]models.FundHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.FundHold
	for _, hold := range s.holds {
		if !hold.Released && hold.ExpiresAt.Before(now) {
			result = append(result, *hold)
		}
	}
	return result, nil
}

func (s *fakeOrderStore) CompletedSubscriptionOrders(ctx context.Context, since time.Time) ([]models.PaymentOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.PaymentOrder
	for _, order := range s.orders {
		if order.SubscriptionID != nil && order.State == models.OrderSettled {
			result = append(result, *order)
		}
	}
	return result, nil
}

type fakePayoutStore struct {
	mu      sync.Mutex
	payouts map[uuid.UUID]*models.Payout
}

func newFakePayoutStore() *fakePayoutStore {
	return &fakePayoutStore{payouts: make(map[uuid.UUID]*models.Payout)}
}

func (s *fakePayoutStore) put(payout *models.Payout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if payout.ID == uuid.Nil {
		payout.ID = uuid.New()
	}
	s.payouts[payout.ID] = payout
}

func (s *fakePayoutStore) Create(ctx context.Context, payout *models.Payout) error {
	s.put(payout)
	return nil
}

func (s *fakePayoutStore) GetByID(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payout, ok := s.payouts[payoutID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return payout, nil
}

func (s *fakePayoutStore) GetByTransferID(ctx context.Context, transferID string) (*models.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, payout := range s.payouts {
		if payout.ProcessorTransferID == transferID && transferID != "" {
			return payout, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *fakePayoutStore) Update(ctx context.Context, payout *models.Payout) error {
	s.put(payout)
	return nil
}

func (s *fakePayoutStore) UpdateGuarded(ctx context.Context, payout *models.Payout) error {
	payout.Version++
	s.put(payout)
	return nil
}

func (s *fakePayoutStore) PendingDue(ctx context.Context, now time.Time, limit int) ([]models.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Payout
	for _, payout := range s.payouts {
		if payout.State != models.PayoutPending {
			continue
		}
		if payout.ScheduledFor != nil && payout.ScheduledFor.After(now) {
			continue
		}
		result = append(result, *payout)
	}
	return result, nil
}

func (s *fakePayoutStore) StuckProcessing(ctx context.Context, olderThan, lookback time.Time, limit int) ([]models.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Payout
	for _, payout := range s.payouts {
		if payout.State == models.PayoutProcessing || payout.State == models.PayoutScheduled {
			result = append(result, *payout)
		}
	}
	return result, nil
}

func (s *fakePayoutStore) ActiveForOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Payout
	for _, payout := range s.payouts {
		if payout.PaymentOrderID == nil || *payout.PaymentOrderID != orderID {
			continue
		}
		if payout.State == models.PayoutFailed || payout.State == models.PayoutCancelled {
			continue
		}
		result = append(result, *payout)
	}
	return result, nil
}

func (s *fakePayoutStore) HasAggregatedForPeriod(ctx context.Context, connectedAccountID uuid.UUID, period string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, payout := range s.payouts {
		if payout.PaymentOrderID != nil || payout.ConnectedAccountID != connectedAccountID {
			continue
		}
		if p, ok := payout.Metadata["period"].(string); ok && p == period {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakePayoutStore) all() []*models.Payout {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]*models.Payout, 0, len(s.payouts))
	for _, payout := range s.payouts {
		result = append(result, payout)
	}
	return result
}

type fakeRefundStore struct {
	mu      sync.Mutex
	refunds map[uuid.UUID]*models.Refund
}

func newFakeRefundStore() *fakeRefundStore {
	return &fakeRefundStore{refunds: make(map[uuid.UUID]*models.Refund)}
}

func (s *fakeRefundStore) put(refund *models.Refund) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if refund.ID == uuid.Nil {
		refund.ID = uuid.New()
	}
	s.refunds[refund.ID] = refund
}

func (s *fakeRefundStore) Create(ctx context.Context, refund *models.Refund) error {
	s.put(refund)
	return nil
}

func (s *fakeRefundStore) GetByID(ctx context.Context, refundID uuid.UUID) (*models.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	refund, ok := s.refunds[refundID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return refund, nil
}

func (s *fakeRefundStore) GetByProcessorID(ctx context.Context, processorRefundID string) (*models.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, refund := range s.refunds {
		if refund.ProcessorRefundID == processorRefundID && processorRefundID != "" {
			return refund, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *fakeRefundStore) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Refund
	for _, refund := range s.refunds {
		if refund.PaymentOrderID == orderID {
			result = append(result, *refund)
		}
	}
	return result, nil
}

func (s *fakeRefundStore) CompletedTotalForOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, refund := range s.refunds {
		if refund.PaymentOrderID == orderID && refund.State == models.RefundCompleted {
			total += refund.AmountCents
		}
	}
	return total, nil
}

func (s *fakeRefundStore) HasProcessingForOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, refund := range s.refunds {
		if refund.PaymentOrderID == orderID &&
			(refund.State == models.RefundPending || refund.State == models.RefundProcessing) {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeRefundStore) Update(ctx context.Context, refund *models.Refund) error {
	s.put(refund)
	return nil
}

func (s *fakeRefundStore) UpdateGuarded(ctx context.Context, refund *models.Refund) error {
	refund.Version++
	s.put(refund)
	return nil
}

type fakeSubscriptionStore struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*models.Subscription
}

func newFakeSubscriptionStore() *fakeSubscriptionStore {
	return &fakeSubscriptionStore{subs: make(map[uuid.UUID]*models.Subscription)}
}

func (s *fakeSubscriptionStore) put(sub *models.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	s.subs[sub.ID] = sub
}

func (s *fakeSubscriptionStore) Create(ctx context.Context, sub *models.Subscription) error {
	s.put(sub)
	return nil
}

func (s *fakeSubscriptionStore) GetByID(ctx context.Context, subID uuid.UUID) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[subID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return sub, nil
}

func (s *fakeSubscriptionStore) GetByProcessorID(ctx context.Context, processorSubID string) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.ProcessorSubscriptionID == processorSubID && processorSubID != "" {
			return sub, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *fakeSubscriptionStore) Update(ctx context.Context, sub *models.Subscription) error {
	s.put(sub)
	return nil
}

func (s *fakeSubscriptionStore) UpdateGuarded(ctx context.Context, sub *models.Subscription) error {
	sub.Version++
	s.put(sub)
	return nil
}

type fakeAccountStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.ConnectedAccount
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{accounts: make(map[uuid.UUID]*models.ConnectedAccount)}
}

func (s *fakeAccountStore) put(account *models.ConnectedAccount) *models.ConnectedAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	s.accounts[account.ID] = account
	return account
}

func (s *fakeAccountStore) GetByID(ctx context.Context, accountID uuid.UUID) (*models.ConnectedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return account, nil
}

func (s *fakeAccountStore) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*models.ConnectedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.accounts {
		if account.OwnerID == ownerID {
			return account, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *fakeAccountStore) GetByProcessorID(ctx context.Context, processorAccountID string) (*models.ConnectedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.accounts {
		if account.ProcessorAccountID == processorAccountID && processorAccountID != "" {
			return account, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *fakeAccountStore) Update(ctx context.Context, account *models.ConnectedAccount) error {
	s.put(account)
	return nil
}

func (s *fakeAccountStore) UpdateGuarded(ctx context.Context, account *models.ConnectedAccount) error {
	account.Version++
	s.put(account)
	return nil
}

type fakeWebhookStore struct {
	mu     sync.Mutex
	events map[string]*models.WebhookEvent
}

func newFakeWebhookStore() *fakeWebhookStore {
	return &fakeWebhookStore{events: make(map[string]*models.WebhookEvent)}
}

func (s *fakeWebhookStore) GetOrCreate(ctx context.Context, event *models.WebhookEvent) (*models.WebhookEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.events[event.ProcessorEventID]; ok {
		return existing, false, nil
	}
	event.ID = uuid.New()
	event.CreatedAt = time.Now()
	s.events[event.ProcessorEventID] = event
	return event, true, nil
}

func (s *fakeWebhookStore) Update(ctx context.Context, event *models.WebhookEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ProcessorEventID] = event
	return nil
}

func (s *fakeWebhookStore) FailedRetryable(ctx context.Context, limit int) ([]models.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.WebhookEvent
	for _, event := range s.events {
		if event.State == models.WebhookFailed && event.RetryCount < models.MaxWebhookRetries {
			result = append(result, *event)
		}
	}
	return result, nil
}

func (s *fakeWebhookStore) StuckProcessing(ctx context.Context, olderThan time.Time, limit int) ([]models.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.WebhookEvent
	for _, event := range s.events {
		if event.State == models.WebhookProcessing && event.UpdatedAt.Before(olderThan) {
			result = append(result, *event)
		}
	}
	return result, nil
}

func (s *fakeWebhookStore) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, event := range s.events {
		if event.State == models.WebhookProcessed && event.CreatedAt.Before(cutoff) {
			delete(s.events, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *fakeWebhookStore) get(processorEventID string) *models.WebhookEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[processorEventID]
}

func (s *fakeWebhookStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type fakeLock struct {
	release func()
}

func (l fakeLock) Release(ctx context.Context) error {
	if l.release != nil {
		l.release()
	}
	return nil
}

// fakeLocker hands out no-op locks and records the keys requested. With
// exclusive set it refuses a key that is already held, like the Redis
// manager does once its timeout elapses.
type fakeLocker struct {
	mu        sync.Mutex
	keys      []string
	acquireFn func(key string) error
	exclusive bool
	held      map[string]bool
}

func (l *fakeLocker) Acquire(ctx context.Context, key string, ttl, timeout time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.acquireFn != nil {
		if err := l.acquireFn(key); err != nil {
			return nil, err
		}
	}
	if l.exclusive {
		if l.held == nil {
			l.held = make(map[string]bool)
		}
		if l.held[key] {
			return nil, &locks.AcquisitionError{Key: key}
		}
		l.held[key] = true
	}
	l.keys = append(l.keys, key)
	return fakeLock{release: func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}}, nil
}

// fakeProcessor implements gateway.ProcessorAdapter with overridable
// function fields; unset calls succeed with synthetic results.
type fakeProcessor struct {
	mu sync.Mutex

	createIntentFn   func(req *gateway.CreateIntentRequest) (*gateway.IntentResult, error)
	createTransferFn func(req *gateway.TransferRequest) (*gateway.Transfer, error)
	createRefundFn   func(req *gateway.RefundRequest) (*gateway.RefundResult, error)
	getIntentFn      func(intentID string) (*gateway.Intent, error)
	listTransfersFn  func(since time.Time, limit int) ([]gateway.Transfer, error)
	verifyFn         func(payload []byte, signature string) (*gateway.WebhookEvent, error)

	transferRequests []gateway.TransferRequest
	refundRequests   []gateway.RefundRequest
	intentRequests   []gateway.CreateIntentRequest
}

func (p *fakeProcessor) GetType() gateway.ProcessorType { return gateway.ProcessorStripe }

func (p *fakeProcessor) CreatePaymentIntent(ctx context.Context, req *gateway.CreateIntentRequest) (*gateway.IntentResult, error) {
	p.mu.Lock()
	p.intentRequests = append(p.intentRequests, *req)
	p.mu.Unlock()
	if p.createIntentFn != nil {
		return p.createIntentFn(req)
	}
	return &gateway.IntentResult{IntentID: "pi_" + uuid.NewString()[:8], ClientSecret: "secret", Status: gateway.IntentStatusRequiresAction}, nil
}

func (p *fakeProcessor) GetPaymentIntent(ctx context.Context, intentID string) (*gateway.Intent, error) {
	if p.getIntentFn != nil {
		return p.getIntentFn(intentID)
	}
	return &gateway.Intent{ID: intentID, Status: gateway.IntentStatusSucceeded}, nil
}

func (p *fakeProcessor) CancelPaymentIntent(ctx context.Context, intentID string) error { return nil }

func (p *fakeProcessor) CreateRefund(ctx context.Context, req *gateway.RefundRequest) (*gateway.RefundResult, error) {
	p.mu.Lock()
	p.refundRequests = append(p.refundRequests, *req)
	p.mu.Unlock()
	if p.createRefundFn != nil {
		return p.createRefundFn(req)
	}
	return &gateway.RefundResult{RefundID: "re_" + uuid.NewString()[:8], Status: "pending"}, nil
}

func (p *fakeProcessor) CreateTransfer(ctx context.Context, req *gateway.TransferRequest) (*gateway.Transfer, error) {
	p.mu.Lock()
	p.transferRequests = append(p.transferRequests, *req)
	p.mu.Unlock()
	if p.createTransferFn != nil {
		return p.createTransferFn(req)
	}
	return &gateway.Transfer{
		ID:          "tr_" + uuid.NewString()[:8],
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Destination: req.DestinationAccountID,
		Metadata:    req.Metadata,
		Created:     time.Now(),
	}, nil
}

func (p *fakeProcessor) GetTransfer(ctx context.Context, transferID string) (*gateway.Transfer, error) {
	return &gateway.Transfer{ID: transferID}, nil
}

func (p *fakeProcessor) ListRecentTransfers(ctx context.Context, since time.Time, limit int) ([]gateway.Transfer, error) {
	if p.listTransfersFn != nil {
		return p.listTransfersFn(since, limit)
	}
	return nil, nil
}

func (p *fakeProcessor) CreateCustomer(ctx context.Context, req *gateway.CustomerRequest) (string, error) {
	return "cus_" + uuid.NewString()[:8], nil
}

func (p *fakeProcessor) CreateSubscription(ctx context.Context, req *gateway.SubscriptionRequest) (*gateway.SubscriptionResult, error) {
	start := time.Now()
	end := start.Add(30 * 24 * time.Hour)
	return &gateway.SubscriptionResult{
		SubscriptionID:     "sub_" + uuid.NewString()[:8],
		Status:             "active",
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
	}, nil
}

func (p *fakeProcessor) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) (*gateway.SubscriptionResult, error) {
	return &gateway.SubscriptionResult{SubscriptionID: subscriptionID, Status: "canceled"}, nil
}

func (p *fakeProcessor) VerifyWebhook(payload []byte, signature string) (*gateway.WebhookEvent, error) {
	if p.verifyFn != nil {
		return p.verifyFn(payload, signature)
	}
	return nil, gateway.NewProcessorError("invalid_signature", "signature verification failed", false)
}

// recordingPublisher captures emitted events by name.
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) record(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, name)
}

func (p *recordingPublisher) PaymentSettled(ctx context.Context, order *models.PaymentOrder) {
	p.record("payment.settled")
}

func (p *recordingPublisher) PaymentFailed(ctx context.Context, order *models.PaymentOrder) {
	p.record("payment.failed")
}

func (p *recordingPublisher) RefundCompleted(ctx context.Context, refund *models.Refund) {
	p.record("refund.completed")
}

func (p *recordingPublisher) PayoutPaid(ctx context.Context, payout *models.Payout) {
	p.record("payout.paid")
}

func (p *recordingPublisher) DiscrepancyFlagged(ctx context.Context, d *models.ReconciliationDiscrepancy) {
	p.record("discrepancy.flagged")
}

func (p *recordingPublisher) has(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e == name {
			return true
		}
	}
	return false
}

// testEnv bundles the fakes one set of strategy deps is built from.
type testEnv struct {
	orders    *fakeOrderStore
	payouts   *fakePayoutStore
	refunds   *fakeRefundStore
	subs      *fakeSubscriptionStore
	accounts  *fakeAccountStore
	ledger    *fakeLedgerStore
	webhooks  *fakeWebhookStore
	processor *fakeProcessor
	locker    *fakeLocker
	publisher *recordingPublisher
	ledgerSvc *LedgerService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		orders:    newFakeOrderStore(),
		payouts:   newFakePayoutStore(),
		refunds:   newFakeRefundStore(),
		subs:      newFakeSubscriptionStore(),
		accounts:  newFakeAccountStore(),
		ledger:    newFakeLedgerStore(),
		webhooks:  newFakeWebhookStore(),
		processor: &fakeProcessor{},
		locker:    &fakeLocker{},
		publisher: &recordingPublisher{},
	}
	env.ledgerSvc = NewLedgerService(env.ledger, testLogger())
	return env
}

func (env *testEnv) strategyDeps() StrategyDeps {
	return StrategyDeps{
		Orders:        env.orders,
		Payouts:       env.payouts,
		Accounts:      env.accounts,
		Subscriptions: env.subs,
		Ledger:        env.ledgerSvc,
		Processor:     env.processor,
		Locker:        env.locker,
		Publisher:     env.publisher,
		FeePercent:    DefaultFeePercent,
		HoldPeriod:    DefaultHoldPeriod,
		Logger:        testLogger(),
	}
}

// readyAccount stores a connected account that can receive payouts.
func (env *testEnv) readyAccount(ownerID uuid.UUID) *models.ConnectedAccount {
	return env.accounts.put(&models.ConnectedAccount{
		OwnerID:            ownerID,
		ProcessorAccountID: "acct_" + uuid.NewString()[:8],
		OnboardingStatus:   models.OnboardingComplete,
		PayoutsEnabled:     true,
		ChargesEnabled:     true,
	})
}
