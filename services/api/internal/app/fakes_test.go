package app

import (
	"context"
	"sort"
	"time"

	"github.com/delvillarfr/le-ultracivic/services/api/internal/domain"
)

// fakeAllowanceRepo is an in-memory AllowanceRepository. WithTx snapshots the
// rows and restores them when fn fails, mirroring transactional rollback.
type fakeAllowanceRepo struct {
	allowances []domain.Allowance

	setTxHashNoop bool
	listErr       error

	lastListLimit  int
	lastListOffset int
}

func newFakeAllowanceRepo(allowances []domain.Allowance) *fakeAllowanceRepo {
	return &fakeAllowanceRepo{allowances: append([]domain.Allowance{}, allowances...)}
}

func availableRows(serials ...string) []domain.Allowance {
	rows := make([]domain.Allowance, 0, len(serials))
	for _, s := range serials {
		rows = append(rows, domain.Allowance{SerialNumber: s, Status: domain.StatusAvailable})
	}
	return rows
}

func reservedRows(orderID, wallet string, reservedAt time.Time, txHash *string, serials ...string) []domain.Allowance {
	rows := make([]domain.Allowance, 0, len(serials))
	for _, s := range serials {
		id := orderID
		w := wallet
		ts := reservedAt
		rows = append(rows, domain.Allowance{
			SerialNumber: s,
			Status:       domain.StatusReserved,
			OrderID:      &id,
			Wallet:       &w,
			TxHash:       txHash,
			Timestamp:    &ts,
		})
	}
	return rows
}

func strptr(s string) *string { return &s }

func (f *fakeAllowanceRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snapshot := append([]domain.Allowance{}, f.allowances...)
	if err := fn(ctx); err != nil {
		f.allowances = snapshot
		return err
	}
	return nil
}

func (f *fakeAllowanceRepo) AcquireAvailable(_ context.Context, n int) ([]domain.Allowance, error) {
	var out []domain.Allowance
	for _, a := range f.allowances {
		if a.Status == domain.StatusAvailable {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SerialNumber < out[j].SerialNumber })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (f *fakeAllowanceRepo) FindByOrder(_ context.Context, orderID string) ([]domain.Allowance, error) {
	var out []domain.Allowance
	for _, a := range f.allowances {
		if a.OrderID != nil && *a.OrderID == orderID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SerialNumber < out[j].SerialNumber })
	return out, nil
}

func (f *fakeAllowanceRepo) Reserve(_ context.Context, serials []string, orderID, wallet string, message *string, now time.Time) error {
	matched := 0
	for i := range f.allowances {
		a := &f.allowances[i]
		if a.Status != domain.StatusAvailable || !contains(serials, a.SerialNumber) {
			continue
		}
		id := orderID
		w := wallet
		ts := now
		a.Status = domain.StatusReserved
		a.OrderID = &id
		a.Wallet = &w
		a.Message = message
		a.Timestamp = &ts
		a.UpdatedAt = now
		matched++
	}
	if matched != len(serials) {
		return domain.ErrInsufficientInventory
	}
	return nil
}

func (f *fakeAllowanceRepo) SetTxHash(_ context.Context, orderID, txHash string, now time.Time) (int64, error) {
	if f.setTxHashNoop {
		return 0, nil
	}
	var affected int64
	for i := range f.allowances {
		a := &f.allowances[i]
		if a.OrderID == nil || *a.OrderID != orderID {
			continue
		}
		if a.Status != domain.StatusReserved || a.TxHash != nil {
			continue
		}
		h := txHash
		a.TxHash = &h
		a.UpdatedAt = now
		affected++
	}
	return affected, nil
}

func (f *fakeAllowanceRepo) ListInFlight(_ context.Context) ([]domain.Allowance, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	seen := make(map[string]bool)
	var out []domain.Allowance
	for _, a := range f.allowances {
		if a.Status != domain.StatusReserved || a.TxHash == nil || a.OrderID == nil {
			continue
		}
		if seen[*a.OrderID] {
			continue
		}
		seen[*a.OrderID] = true
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeAllowanceRepo) Retire(_ context.Context, orderID, rewardTxHash string, now time.Time) (int64, error) {
	var affected int64
	for i := range f.allowances {
		a := &f.allowances[i]
		if a.OrderID == nil || *a.OrderID != orderID || a.Status != domain.StatusReserved {
			continue
		}
		h := rewardTxHash
		a.Status = domain.StatusRetired
		a.RewardTxHash = &h
		a.UpdatedAt = now
		affected++
	}
	return affected, nil
}

func (f *fakeAllowanceRepo) Release(_ context.Context, orderID string, now time.Time) (int64, error) {
	var affected int64
	for i := range f.allowances {
		a := &f.allowances[i]
		if a.OrderID == nil || *a.OrderID != orderID || a.Status != domain.StatusReserved {
			continue
		}
		f.resetRow(a, now)
		affected++
	}
	return affected, nil
}

func (f *fakeAllowanceRepo) ReleaseExpired(_ context.Context, cutoff, now time.Time) ([]string, int, error) {
	return f.releaseWhere(cutoff, now, false)
}

func (f *fakeAllowanceRepo) ReleaseStuck(_ context.Context, cutoff, now time.Time) ([]string, int, error) {
	return f.releaseWhere(cutoff, now, true)
}

func (f *fakeAllowanceRepo) releaseWhere(cutoff, now time.Time, withTxHash bool) ([]string, int, error) {
	seen := make(map[string]bool)
	var orders []string
	count := 0
	for i := range f.allowances {
		a := &f.allowances[i]
		if a.Status != domain.StatusReserved || a.Timestamp == nil || !a.Timestamp.Before(cutoff) {
			continue
		}
		if withTxHash && a.TxHash == nil {
			continue
		}
		if a.OrderID != nil && !seen[*a.OrderID] {
			seen[*a.OrderID] = true
			orders = append(orders, *a.OrderID)
		}
		f.resetRow(a, now)
		count++
	}
	return orders, count, nil
}

func (f *fakeAllowanceRepo) resetRow(a *domain.Allowance, now time.Time) {
	a.Status = domain.StatusAvailable
	a.OrderID = nil
	a.Wallet = nil
	a.Message = nil
	a.TxHash = nil
	a.RewardTxHash = nil
	a.Timestamp = nil
	a.UpdatedAt = now
}

func (f *fakeAllowanceRepo) CountByStatus(context.Context) (map[domain.AllowanceStatus]int, error) {
	counts := make(map[domain.AllowanceStatus]int)
	for _, a := range f.allowances {
		counts[a.Status]++
	}
	return counts, nil
}

func (f *fakeAllowanceRepo) CountReclaimable(_ context.Context, cutoff time.Time, withTxHash bool) (int, error) {
	n := 0
	for _, a := range f.allowances {
		if a.Status != domain.StatusReserved || a.Timestamp == nil || !a.Timestamp.Before(cutoff) {
			continue
		}
		if withTxHash && a.TxHash == nil {
			continue
		}
		n++
	}
	return n, nil
}

func (f *fakeAllowanceRepo) ListCompleted(_ context.Context, limit, offset int) ([]domain.Order, error) {
	f.lastListLimit = limit
	f.lastListOffset = offset

	grouped := make(map[string][]domain.Allowance)
	for _, a := range f.allowances {
		if a.Status == domain.StatusRetired && a.OrderID != nil {
			grouped[*a.OrderID] = append(grouped[*a.OrderID], a)
		}
	}
	var orders []domain.Order
	for _, rows := range grouped {
		o, err := domain.AggregateOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CompletedAt.After(orders[j].CompletedAt) })
	if offset >= len(orders) {
		return nil, nil
	}
	orders = orders[offset:]
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (f *fakeAllowanceRepo) countByStatusSync(status domain.AllowanceStatus) int {
	n := 0
	for _, a := range f.allowances {
		if a.Status == status {
			n++
		}
	}
	return n
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// fakeOracle serves canned answers per transaction hash.
type fakeOracle struct {
	txs      map[string]*domain.TxInfo
	receipts map[string]*domain.TxReceipt
	confirms map[string]domain.Confirmation
	err      error
}

func (f *fakeOracle) Transaction(_ context.Context, hash string) (*domain.TxInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.txs[hash], nil
}

func (f *fakeOracle) Receipt(_ context.Context, hash string) (*domain.TxReceipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.receipts[hash], nil
}

func (f *fakeOracle) Confirmation(_ context.Context, hash string) (domain.Confirmation, error) {
	if f.err != nil {
		return domain.ConfirmationPending, f.err
	}
	return f.confirms[hash], nil
}

// fakeQuoter returns a fixed payment band.
type fakeQuoter struct {
	quote domain.PaymentQuote
	err   error
}

func (f *fakeQuoter) ExpectedPayment(context.Context, int) (domain.PaymentQuote, error) {
	if f.err != nil {
		return domain.PaymentQuote{}, f.err
	}
	return f.quote, nil
}

type transferCall struct {
	to     string
	amount int
}

// fakeDisburser records transfer calls and serves canned outcomes.
type fakeDisburser struct {
	calls       []transferCall
	ticket      domain.TransferTicket
	transferErr error
	waitHash    string
	waitErr     error
}

func (f *fakeDisburser) Transfer(_ context.Context, to string, amount int) (domain.TransferTicket, error) {
	f.calls = append(f.calls, transferCall{to: to, amount: amount})
	if f.transferErr != nil {
		return domain.TransferTicket{}, f.transferErr
	}
	return f.ticket, nil
}

func (f *fakeDisburser) WaitForCompletion(_ context.Context, _ string, _ time.Duration) (string, error) {
	if f.waitErr != nil {
		return "", f.waitErr
	}
	return f.waitHash, nil
}

type notification struct {
	event   string
	details map[string]string
}

// fakeNotifier records notifications.
type fakeNotifier struct {
	sent []notification
}

func (f *fakeNotifier) Notify(_ context.Context, event string, details map[string]string) {
	f.sent = append(f.sent, notification{event: event, details: details})
}

// fakeTrigger records the orders handed to asynchronous settlement.
type fakeTrigger struct {
	orders []string
}

func (f *fakeTrigger) ProcessOrderAsync(orderID string) {
	f.orders = append(f.orders, orderID)
}
