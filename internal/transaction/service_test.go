package transaction

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/radityprtama/stock-app/internal/masterdata"
	"github.com/radityprtama/stock-app/internal/stock"
)

// fakeStore backs RepositoryPort, TxRepository and stock.TxStore with maps,
// restoring a snapshot when the unit of work fails so rollback semantics
// match the real repository.
type fakeStore struct {
	mu           sync.Mutex
	seq          int64
	entrySeq     int64
	transactions map[int64]*Transaction
	balances     map[stock.BalanceKey]int64
	ledger       []stock.LedgerEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		transactions: map[int64]*Transaction{},
		balances:     map[stock.BalanceKey]int64{},
	}
}

func (f *fakeStore) cloneTransactions() map[int64]*Transaction {
	out := make(map[int64]*Transaction, len(f.transactions))
	for id, trx := range f.transactions {
		cp := *trx
		cp.Lines = slices.Clone(trx.Lines)
		out[id] = &cp
	}
	return out
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapTrx := f.cloneTransactions()
	snapBal := maps.Clone(f.balances)
	snapLedger := slices.Clone(f.ledger)
	if err := fn(ctx, (*fakeTx)(f)); err != nil {
		f.transactions = snapTrx
		f.balances = snapBal
		f.ledger = snapLedger
		return err
	}
	return nil
}

func (f *fakeStore) get(kind Kind, id int64) (Transaction, error) {
	trx, ok := f.transactions[id]
	if !ok || trx.Kind != kind {
		return Transaction{}, ErrNotFound
	}
	cp := *trx
	cp.Lines = slices.Clone(trx.Lines)
	return cp, nil
}

func (f *fakeStore) Get(ctx context.Context, kind Kind, id int64) (Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.get(kind, id)
}

func (f *fakeStore) List(ctx context.Context, filter ListFilter) ([]Transaction, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Transaction
	for _, trx := range f.transactions {
		if trx.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && trx.Status != filter.Status {
			continue
		}
		cp := *trx
		cp.Lines = slices.Clone(trx.Lines)
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b Transaction) int { return int(a.ID - b.ID) })
	return out, len(out), nil
}

func (f *fakeStore) Create(ctx context.Context, trx Transaction) (Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	trx.ID = f.seq
	trx.Status = StatusDraft
	trx.DocNumber = fmt.Sprintf("%s-%04d", trx.Kind, trx.ID)
	trx.CreatedAt = time.Now().UTC()
	trx.UpdatedAt = trx.CreatedAt
	for i := range trx.Lines {
		f.seq++
		trx.Lines[i].ID = f.seq
		trx.Lines[i].TransactionID = trx.ID
	}
	cp := trx
	cp.Lines = slices.Clone(trx.Lines)
	f.transactions[trx.ID] = &cp
	return trx, nil
}

func (f *fakeStore) Update(ctx context.Context, trx Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.transactions[trx.ID]
	if !ok || existing.Status != StatusDraft {
		return ErrNotFound
	}
	for i := range trx.Lines {
		if trx.Lines[i].ID == 0 {
			f.seq++
			trx.Lines[i].ID = f.seq
			trx.Lines[i].TransactionID = trx.ID
		}
	}
	cp := trx
	cp.Lines = slices.Clone(trx.Lines)
	f.transactions[trx.ID] = &cp
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, kind Kind, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.get(kind, id); err != nil {
		return err
	}
	delete(f.transactions, id)
	return nil
}

// fakeTx is fakeStore under the already-held lock.
type fakeTx fakeStore

func (f *fakeTx) GetForUpdate(ctx context.Context, kind Kind, id int64) (Transaction, error) {
	return (*fakeStore)(f).get(kind, id)
}

func (f *fakeTx) UpdateStatus(ctx context.Context, id int64, status Status, action Action, actorID int64, at time.Time) error {
	trx, ok := f.transactions[id]
	if !ok {
		return ErrNotFound
	}
	trx.Status = status
	trx.UpdatedAt = at
	switch action {
	case ActionPost, ActionApprove:
		trx.PostedAt = &at
		trx.PostedBy = &actorID
	case ActionDeliver:
		trx.DeliveredAt = &at
	case ActionComplete:
		trx.CompletedAt = &at
	case ActionCancel:
		trx.CancelledAt = &at
	}
	return nil
}

func (f *fakeTx) MarkLinePosted(ctx context.Context, lineID int64, at time.Time) error {
	for _, trx := range f.transactions {
		for i := range trx.Lines {
			if trx.Lines[i].ID != lineID {
				continue
			}
			if trx.Lines[i].PostedAt != nil {
				return fmt.Errorf("line %d already posted", lineID)
			}
			trx.Lines[i].PostedAt = &at
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeTx) SetLineDropship(ctx context.Context, lineID int64, dropship bool, status DropshipStatus) error {
	for _, trx := range f.transactions {
		for i := range trx.Lines {
			if trx.Lines[i].ID == lineID {
				trx.Lines[i].Dropship = dropship
				trx.Lines[i].DropshipStatus = status
				return nil
			}
		}
	}
	return ErrNotFound
}

func (f *fakeTx) Ledger() stock.TxStore {
	return (*fakeLedger)(f)
}

// fakeLedger mirrors the real TxStore rules: a movement that would drive a
// balance negative is rejected.
type fakeLedger fakeStore

func (f *fakeLedger) BalanceForUpdate(ctx context.Context, itemID, warehouseID int64) (int64, error) {
	return f.balances[stock.BalanceKey{ItemID: itemID, WarehouseID: warehouseID}], nil
}

func (f *fakeLedger) Apply(ctx context.Context, m stock.Movement) (stock.LedgerEntry, error) {
	key := stock.BalanceKey{ItemID: m.ItemID, WarehouseID: m.WarehouseID}
	next := f.balances[key] + m.Signed()
	if next < 0 {
		return stock.LedgerEntry{}, fmt.Errorf("item %d gudang %d: %w", m.ItemID, m.WarehouseID, stock.ErrInsufficientStock)
	}
	f.balances[key] = next
	f.entrySeq++
	entry := stock.LedgerEntry{
		ID:                  f.entrySeq,
		ItemID:              m.ItemID,
		WarehouseID:         m.WarehouseID,
		Direction:           m.Direction,
		Quantity:            m.Quantity,
		UnitValue:           m.UnitValue,
		SourceID:            m.SourceID,
		SourceKind:          m.SourceKind,
		SourceDoc:           m.SourceDoc,
		RunningBalanceAfter: next,
		OccurredAt:          m.OccurredAt,
		CreatedBy:           m.ActorID,
	}
	f.ledger = append(f.ledger, entry)
	return entry, nil
}

type fakeMaster struct {
	items      map[int64]masterdata.ItemRef
	warehouses map[int64]bool
}

func (m *fakeMaster) GetItems(ctx context.Context, ids []int64) (map[int64]masterdata.ItemRef, error) {
	out := map[int64]masterdata.ItemRef{}
	for _, id := range ids {
		if item, ok := m.items[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

func (m *fakeMaster) WarehouseExists(ctx context.Context, id int64) (bool, error) {
	return m.warehouses[id], nil
}

type fakeBalances struct {
	store *fakeStore
}

func (b *fakeBalances) AdvisoryBalance(ctx context.Context, itemID, warehouseID int64) (int64, error) {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	return b.store.balances[stock.BalanceKey{ItemID: itemID, WarehouseID: warehouseID}], nil
}

const (
	itemCable   = int64(1) // dropship eligible
	itemMouse   = int64(2) // not eligible
	itemMonitor = int64(3) // not eligible, min stock 5
	mainWH      = int64(1)
	secondWH    = int64(2)
)

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	master := &fakeMaster{
		items: map[int64]masterdata.ItemRef{
			itemCable:   {ID: itemCable, Code: "KBL-01", Name: "Kabel HDMI", Unit: "pcs", DropshipEligible: true},
			itemMouse:   {ID: itemMouse, Code: "MSE-01", Name: "Mouse Wireless", Unit: "pcs"},
			itemMonitor: {ID: itemMonitor, Code: "MNT-01", Name: "Monitor 24\"", Unit: "pcs", MinStock: 5},
		},
		warehouses: map[int64]bool{mainWH: true, secondWH: true},
	}
	checker := NewAvailabilityChecker(master, &fakeBalances{store: store})
	svc := NewService(store, master, checker, nil, nil, nil, nil)
	return svc, store
}

func (f *fakeStore) seedBalance(itemID, warehouseID, qty int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[stock.BalanceKey{ItemID: itemID, WarehouseID: warehouseID}] = qty
}

func (f *fakeStore) balance(itemID, warehouseID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[stock.BalanceKey{ItemID: itemID, WarehouseID: warehouseID}]
}

func price(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func draftRequest(kind Kind, lines ...LineRequest) CreateRequest {
	req := CreateRequest{
		Date:           time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		CounterpartyID: 7,
		WarehouseID:    mainWH,
		Lines:          lines,
	}
	switch kind {
	case KindTransfer:
		req.CounterpartyID = 0
		req.DestWarehouseID = secondWH
	case KindDeliveryNote:
		req.DeliveryOption = DeliveryPartial
	}
	return req
}

func TestGoodsReceiptPost(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	trx, err := svc.CreateDraft(ctx, KindGoodsReceipt, draftRequest(KindGoodsReceipt,
		LineRequest{ItemID: itemCable, Quantity: 10, UnitPrice: price(25000)},
	), 42)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, trx.Status)
	require.Equal(t, int64(0), store.balance(itemCable, mainWH))

	result, err := svc.Post(ctx, KindGoodsReceipt, trx.ID, ActionPost, 42)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, result.Status)
	require.Equal(t, int64(10), store.balance(itemCable, mainWH))
	require.Len(t, result.LineStock, 1)
	require.Equal(t, int64(10), result.LineStock[0].Quantity)
	require.NotNil(t, result.Transaction.Lines[0].PostedAt)

	require.Len(t, store.ledger, 1)
	entry := store.ledger[0]
	require.Equal(t, stock.DirectionIn, entry.Direction)
	require.Equal(t, int64(10), entry.Quantity)
	require.Equal(t, int64(10), entry.RunningBalanceAfter)
	require.Equal(t, string(KindGoodsReceipt), entry.SourceKind)
}

func TestGoodsReceiptPostTwiceIsIllegal(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	trx, err := svc.CreateDraft(ctx, KindGoodsReceipt, draftRequest(KindGoodsReceipt,
		LineRequest{ItemID: itemCable, Quantity: 10, UnitPrice: price(25000)},
	), 42)
	require.NoError(t, err)
	_, err = svc.Post(ctx, KindGoodsReceipt, trx.ID, ActionPost, 42)
	require.NoError(t, err)

	_, err = svc.Post(ctx, KindGoodsReceipt, trx.ID, ActionPost, 42)
	domainErr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindIllegalTransition, domainErr.Kind)

	// no double stock effect
	require.Equal(t, int64(10), store.balance(itemCable, mainWH))
	require.Len(t, store.ledger, 1)
}

func TestDeliveryCompleteInsufficientStockRollsBack(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	store.seedBalance(itemMouse, mainWH, 3)

	req := draftRequest(KindDeliveryNote,
		LineRequest{ItemID: itemMouse, Quantity: 5, UnitPrice: price(90000)},
	)
	req.DeliveryOption = DeliveryComplete
	trx, err := svc.CreateDraft(ctx, KindDeliveryNote, req, 42)
	require.NoError(t, err)

	_, err = svc.Post(ctx, KindDeliveryNote, trx.ID, ActionPost, 42)
	domainErr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindInsufficientStock, domainErr.Kind)
	require.NotEmpty(t, domainErr.Details)

	after, err := svc.Get(ctx, KindDeliveryNote, trx.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, after.Status)
	require.Equal(t, int64(3), store.balance(itemMouse, mainWH))
	require.Empty(t, store.ledger)
}

func TestDeliveryPartialParksShortEligibleLineAsDropship(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	store.seedBalance(itemMouse, mainWH, 10)
	store.seedBalance(itemCable, mainWH, 2)

	trx, err := svc.CreateDraft(ctx, KindDeliveryNote, draftRequest(KindDeliveryNote,
		LineRequest{ItemID: itemMouse, Quantity: 4, UnitPrice: price(90000)},
		LineRequest{ItemID: itemCable, Quantity: 8, UnitPrice: price(25000)},
	), 42)
	require.NoError(t, err)

	result, err := svc.Post(ctx, KindDeliveryNote, trx.ID, ActionPost, 42)
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, result.Status)

	// in-stock line shipped
	require.Equal(t, int64(6), store.balance(itemMouse, mainWH))
	require.Len(t, store.ledger, 1)
	require.Equal(t, stock.DirectionOut, store.ledger[0].Direction)

	// short eligible line parked, stock untouched
	require.Equal(t, int64(2), store.balance(itemCable, mainWH))
	require.Len(t, result.DropshipPending, 1)
	require.Equal(t, itemCable, result.DropshipPending[0].ItemID)
	require.Equal(t, DropshipPending, result.DropshipPending[0].DropshipStatus)

	after, err := svc.Get(ctx, KindDeliveryNote, trx.ID)
	require.NoError(t, err)
	for _, line := range after.Lines {
		if line.ItemID == itemCable {
			require.True(t, line.Dropship)
			require.Equal(t, DropshipPending, line.DropshipStatus)
			require.Nil(t, line.PostedAt)
		} else {
			require.NotNil(t, line.PostedAt)
		}
	}
}

func TestDeliveryPartialShortNotEligibleFails(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	store.seedBalance(itemMouse, mainWH, 1)
	store.seedBalance(itemCable, mainWH, 10)

	trx, err := svc.CreateDraft(ctx, KindDeliveryNote, draftRequest(KindDeliveryNote,
		LineRequest{ItemID: itemCable, Quantity: 5, UnitPrice: price(25000)},
		LineRequest{ItemID: itemMouse, Quantity: 4, UnitPrice: price(90000)},
	), 42)
	require.NoError(t, err)

	_, err = svc.Post(ctx, KindDeliveryNote, trx.ID, ActionPost, 42)
	domainErr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindDropshipNotEligible, domainErr.Kind)

	// the whole posting rolled back, including the fulfillable line
	require.Equal(t, int64(10), store.balance(itemCable, mainWH))
	require.Empty(t, store.ledger)
	after, err := svc.Get(ctx, KindDeliveryNote, trx.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, after.Status)
}

// postPartialWithDropship sets up an in-transit delivery with one shipped
// line (mouse) and one pending dropship line (cable, qty 8).
func postPartialWithDropship(t *testing.T, svc *Service, store *fakeStore) Transaction {
	t.Helper()
	ctx := context.Background()
	store.seedBalance(itemMouse, mainWH, 10)
	store.seedBalance(itemCable, mainWH, 2)
	trx, err := svc.CreateDraft(ctx, KindDeliveryNote, draftRequest(KindDeliveryNote,
		LineRequest{ItemID: itemMouse, Quantity: 4, UnitPrice: price(90000)},
		LineRequest{ItemID: itemCable, Quantity: 8, UnitPrice: price(25000)},
	), 42)
	require.NoError(t, err)
	_, err = svc.Post(ctx, KindDeliveryNote, trx.ID, ActionPost, 42)
	require.NoError(t, err)
	after, err := svc.Get(ctx, KindDeliveryNote, trx.ID)
	require.NoError(t, err)
	return after
}

func TestFulfillShipsReceivedDropshipLines(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	trx := postPartialWithDropship(t, svc, store)

	var cableLine Line
	for _, line := range trx.Lines {
		if line.ItemID == itemCable {
			cableLine = line
		}
	}

	// nothing received yet
	_, err := svc.Post(ctx, KindDeliveryNote, trx.ID, ActionFulfill, 42)
	domainErr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindValidationError, domainErr.Kind)

	// pending -> ordered -> received
	_, err = svc.AdvanceDropship(ctx, trx.ID, cableLine.ID, DropshipOrdered, 42)
	require.NoError(t, err)
	_, err = svc.AdvanceDropship(ctx, trx.ID, cableLine.ID, DropshipReceived, 42)
	require.NoError(t, err)

	// replenishment arrived via a separate goods receipt
	store.seedBalance(itemCable, mainWH, 10)

	result, err := svc.Post(ctx, KindDeliveryNote, trx.ID, ActionFulfill, 42)
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, result.Status)
	require.Empty(t, result.DropshipPending)
	require.Equal(t, int64(2), store.balance(itemCable, mainWH))

	after, err := svc.Get(ctx, KindDeliveryNote, trx.ID)
	require.NoError(t, err)
	for _, line := range after.Lines {
		require.NotNil(t, line.PostedAt, "item %d", line.ItemID)
	}
}

func TestFulfillReceivedButShortFails(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	trx := postPartialWithDropship(t, svc, store)

	var cableLine Line
	for _, line := range trx.Lines {
		if line.ItemID == itemCable {
			cableLine = line
		}
	}
	_, err := svc.AdvanceDropship(ctx, trx.ID, cableLine.ID, DropshipOrdered, 42)
	require.NoError(t, err)
	_, err = svc.AdvanceDropship(ctx, trx.ID, cableLine.ID, DropshipReceived, 42)
	require.NoError(t, err)

	// marked received but the matching receipt was never posted: 2 on hand
	_, err = svc.Post(ctx, KindDeliveryNote, trx.ID, ActionFulfill, 42)
	domainErr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindInsufficientStock, domainErr.Kind)
	require.Equal(t, int64(2), store.balance(itemCable, mainWH))
}

func TestDeliverRequiresAllLinesPosted(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	trx := postPartialWithDropship(t, svc, store)

	_, err := svc.Post(ctx, KindDeliveryNote, trx.ID, ActionDeliver, 42)
	domainErr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindValidationError, domainErr.Kind)

	var cableLine Line
	for _, line := range trx.Lines {
		if line.ItemID == itemCable {
			cableLine = line
		}
	}
	_, err = svc.AdvanceDropship(ctx, trx.ID, cableLine.ID, DropshipOrdered, 42)
	require.NoError(t, err)
	_, err = svc.AdvanceDropship(ctx, trx.ID, cableLine.ID, DropshipReceived, 42)
	require.NoError(t, err)
	store.seedBalance(itemCable, mainWH, 10)
	_, err = svc.Post(ctx, KindDeliveryNote, trx.ID, ActionFulfill, 42)
	require.NoError(t, err)

	result, err := svc.Post(ctx, KindDeliveryNote, trx.ID, ActionDeliver, 42)
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, result.Status)
	require.NotNil(t, result.Transaction.DeliveredAt)
}

func TestMarkingReceivedDoesNotMoveStock(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	trx := postPartialWithDropship(t, svc, store)

	var cableLine Line
	for _, line := range trx.Lines {
		if line.ItemID == itemCable {
			cableLine = line
		}
	}
	before := store.balance(itemCable, mainWH)
	ledgerBefore := len(store.ledger)

	_, err := svc.AdvanceDropship(ctx, trx.ID, cableLine.ID, DropshipOrdered, 42)
	require.NoError(t, err)
	_, err = svc.AdvanceDropship(ctx, trx.ID, cableLine.ID, DropshipReceived, 42)
	require.NoError(t, err)

	require.Equal(t, before, store.balance(itemCable, mainWH))
	require.Len(t, store.ledger, ledgerBefore)
}

func TestAdvanceDropshipRejectsSkips(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	trx := postPartialWithDropship(t, svc, store)

	var cableLine, mouseLine Line
	for _, line := range trx.Lines {
		if line.ItemID == itemCable {
			cableLine = line
		} else {
			mouseLine = line
		}
	}

	_, err := svc.AdvanceDropship(ctx, trx.ID, cableLine.ID, DropshipReceived, 42)
	domainErr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindIllegalTransition, domainErr.Kind)

	_, err = svc.AdvanceDropship(ctx, trx.ID, mouseLine.ID, DropshipOrdered, 42)
	domainErr, ok = AsError(err)
	require.True(t, ok)
	require.Equal(t, KindValidationError, domainErr.Kind)
}

func TestTransferPostAppliesPairAndDeliverIsStatusOnly(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	store.seedBalance(itemMouse, mainWH, 10)

	trx, err := svc.CreateDraft(ctx, KindTransfer, draftRequest(KindTransfer,
		LineRequest{ItemID: itemMouse, Quantity: 6, UnitPrice: price(90000)},
	), 42)
	require.NoError(t, err)

	result, err := svc.Post(ctx, KindTransfer, trx.ID, ActionPost, 42)
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, result.Status)
	require.Equal(t, int64(4), store.balance(itemMouse, mainWH))
	require.Equal(t, int64(6), store.balance(itemMouse, secondWH))
	require.Len(t, store.ledger, 2)
	require.Equal(t, stock.DirectionOut, store.ledger[0].Direction)
	require.Equal(t, stock.DirectionIn, store.ledger[1].Direction)

	ledgerBefore := len(store.ledger)
	result, err = svc.Post(ctx, KindTransfer, trx.ID, ActionDeliver, 42)
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, result.Status)
	require.Len(t, store.ledger, ledgerBefore)
	require.Equal(t, int64(4), store.balance(itemMouse, mainWH))
	require.Equal(t, int64(6), store.balance(itemMouse, secondWH))
}

func TestTransferInsufficientStockFails(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	store.seedBalance(itemMouse, mainWH, 2)

	trx, err := svc.CreateDraft(ctx, KindTransfer, draftRequest(KindTransfer,
		LineRequest{ItemID: itemMouse, Quantity: 6, UnitPrice: price(90000)},
	), 42)
	require.NoError(t, err)

	_, err = svc.Post(ctx, KindTransfer, trx.ID, ActionPost, 42)
	domainErr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindInsufficientStock, domainErr.Kind)
	require.Equal(t, int64(2), store.balance(itemMouse, mainWH))
	require.Equal(t, int64(0), store.balance(itemMouse, secondWH))
}

func TestPurchaseReturnApproveDecreasesStock(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	store.seedBalance(itemMouse, mainWH, 10)

	trx, err := svc.CreateDraft(ctx, KindPurchaseReturn, draftRequest(KindPurchaseReturn,
		LineRequest{ItemID: itemMouse, Quantity: 3, UnitPrice: price(90000), Reason: "cacat produksi"},
	), 42)
	require.NoError(t, err)

	result, err := svc.Post(ctx, KindPurchaseReturn, trx.ID, ActionApprove, 42)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, result.Status)
	require.Equal(t, int64(7), store.balance(itemMouse, mainWH))

	result, err = svc.Post(ctx, KindPurchaseReturn, trx.ID, ActionComplete, 42)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)
	require.Equal(t, int64(7), store.balance(itemMouse, mainWH))
}

func TestSalesReturnOnlyResalableReentersStock(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	req := draftRequest(KindSalesReturn,
		LineRequest{ItemID: itemMouse, Quantity: 2, UnitPrice: price(90000), Condition: ConditionResalable},
		LineRequest{ItemID: itemCable, Quantity: 3, UnitPrice: price(25000), Condition: ConditionTotalLoss},
	)
	trx, err := svc.CreateDraft(ctx, KindSalesReturn, req, 42)
	require.NoError(t, err)

	result, err := svc.Post(ctx, KindSalesReturn, trx.ID, ActionApprove, 42)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, result.Status)
	require.Equal(t, int64(2), store.balance(itemMouse, mainWH))
	require.Equal(t, int64(0), store.balance(itemCable, mainWH))
	require.Len(t, store.ledger, 1)

	after, err := svc.Get(ctx, KindSalesReturn, trx.ID)
	require.NoError(t, err)
	for _, line := range after.Lines {
		if line.Condition == ConditionResalable {
			require.NotNil(t, line.PostedAt)
		} else {
			require.Nil(t, line.PostedAt)
		}
	}
}

func TestCancelDraftHasNoStockEffect(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	store.seedBalance(itemMouse, mainWH, 10)

	trx, err := svc.CreateDraft(ctx, KindDeliveryNote, draftRequest(KindDeliveryNote,
		LineRequest{ItemID: itemMouse, Quantity: 4, UnitPrice: price(90000)},
	), 42)
	require.NoError(t, err)

	result, err := svc.Post(ctx, KindDeliveryNote, trx.ID, ActionCancel, 42)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, result.Status)
	require.Equal(t, int64(10), store.balance(itemMouse, mainWH))
	require.Empty(t, store.ledger)
}

func TestDraftEditRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	trx, err := svc.CreateDraft(ctx, KindGoodsReceipt, draftRequest(KindGoodsReceipt,
		LineRequest{ItemID: itemCable, Quantity: 10, UnitPrice: price(25000)},
	), 42)
	require.NoError(t, err)

	req := draftRequest(KindGoodsReceipt,
		LineRequest{ItemID: itemCable, Quantity: 12, UnitPrice: price(25000)},
	)
	updated, err := svc.UpdateDraft(ctx, KindGoodsReceipt, trx.ID, req)
	require.NoError(t, err)
	require.Equal(t, int64(12), updated.Lines[0].Quantity)

	_, err = svc.Post(ctx, KindGoodsReceipt, trx.ID, ActionPost, 42)
	require.NoError(t, err)

	_, err = svc.UpdateDraft(ctx, KindGoodsReceipt, trx.ID, req)
	domainErr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindIllegalTransition, domainErr.Kind)

	err = svc.DeleteDraft(ctx, KindGoodsReceipt, trx.ID)
	domainErr, ok = AsError(err)
	require.True(t, ok)
	require.Equal(t, KindIllegalTransition, domainErr.Kind)
}

func TestCreateDraftValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	t.Run("transfer same warehouse", func(t *testing.T) {
		req := draftRequest(KindTransfer, LineRequest{ItemID: itemMouse, Quantity: 1, UnitPrice: price(1)})
		req.DestWarehouseID = mainWH
		_, err := svc.CreateDraft(ctx, KindTransfer, req, 42)
		domainErr, ok := AsError(err)
		require.True(t, ok)
		require.Equal(t, KindValidationError, domainErr.Kind)
	})

	t.Run("sales return missing condition", func(t *testing.T) {
		req := draftRequest(KindSalesReturn, LineRequest{ItemID: itemMouse, Quantity: 1, UnitPrice: price(1)})
		_, err := svc.CreateDraft(ctx, KindSalesReturn, req, 42)
		domainErr, ok := AsError(err)
		require.True(t, ok)
		require.Equal(t, KindValidationError, domainErr.Kind)
	})

	t.Run("unknown item", func(t *testing.T) {
		req := draftRequest(KindGoodsReceipt, LineRequest{ItemID: 999, Quantity: 1, UnitPrice: price(1)})
		_, err := svc.CreateDraft(ctx, KindGoodsReceipt, req, 42)
		domainErr, ok := AsError(err)
		require.True(t, ok)
		require.Equal(t, KindValidationError, domainErr.Kind)
	})

	t.Run("unknown warehouse", func(t *testing.T) {
		req := draftRequest(KindGoodsReceipt, LineRequest{ItemID: itemMouse, Quantity: 1, UnitPrice: price(1)})
		req.WarehouseID = 99
		_, err := svc.CreateDraft(ctx, KindGoodsReceipt, req, 42)
		domainErr, ok := AsError(err)
		require.True(t, ok)
		require.Equal(t, KindValidationError, domainErr.Kind)
	})
}

// TestLedgerBalanceEquivalence runs a mixed sequence and checks that folding
// the ledger reproduces every balance exactly.
func TestLedgerBalanceEquivalence(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	receipt, err := svc.CreateDraft(ctx, KindGoodsReceipt, draftRequest(KindGoodsReceipt,
		LineRequest{ItemID: itemMouse, Quantity: 20, UnitPrice: price(90000)},
		LineRequest{ItemID: itemCable, Quantity: 15, UnitPrice: price(25000)},
	), 42)
	require.NoError(t, err)
	_, err = svc.Post(ctx, KindGoodsReceipt, receipt.ID, ActionPost, 42)
	require.NoError(t, err)

	transfer, err := svc.CreateDraft(ctx, KindTransfer, draftRequest(KindTransfer,
		LineRequest{ItemID: itemMouse, Quantity: 5, UnitPrice: price(90000)},
	), 42)
	require.NoError(t, err)
	_, err = svc.Post(ctx, KindTransfer, transfer.ID, ActionPost, 42)
	require.NoError(t, err)

	delivery, err := svc.CreateDraft(ctx, KindDeliveryNote, draftRequest(KindDeliveryNote,
		LineRequest{ItemID: itemCable, Quantity: 10, UnitPrice: price(25000)},
	), 42)
	require.NoError(t, err)
	_, err = svc.Post(ctx, KindDeliveryNote, delivery.ID, ActionPost, 42)
	require.NoError(t, err)

	salesReturn, err := svc.CreateDraft(ctx, KindSalesReturn, draftRequest(KindSalesReturn,
		LineRequest{ItemID: itemCable, Quantity: 2, UnitPrice: price(25000), Condition: ConditionResalable},
	), 42)
	require.NoError(t, err)
	_, err = svc.Post(ctx, KindSalesReturn, salesReturn.ID, ActionApprove, 42)
	require.NoError(t, err)

	folded := map[stock.BalanceKey]int64{}
	for _, entry := range store.ledger {
		key := stock.BalanceKey{ItemID: entry.ItemID, WarehouseID: entry.WarehouseID}
		if entry.Direction == stock.DirectionIn {
			folded[key] += entry.Quantity
		} else {
			folded[key] -= entry.Quantity
		}
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	for key, qty := range store.balances {
		require.Equal(t, qty, folded[key], "item %d warehouse %d", key.ItemID, key.WarehouseID)
	}
	require.Equal(t, int64(15), folded[stock.BalanceKey{ItemID: itemMouse, WarehouseID: mainWH}])
	require.Equal(t, int64(5), folded[stock.BalanceKey{ItemID: itemMouse, WarehouseID: secondWH}])
	require.Equal(t, int64(7), folded[stock.BalanceKey{ItemID: itemCable, WarehouseID: mainWH}])
}
