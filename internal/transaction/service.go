package transaction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radityprtama/stock-app/internal/shared"
	"github.com/radityprtama/stock-app/internal/stock"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts posting outcomes.
type MetricsPort interface {
	ObservePosting(kind, action, result string)
}

// SnapshotInvalidator drops advisory balance snapshots after a commit.
type SnapshotInvalidator interface {
	InvalidateSnapshots(ctx context.Context, keys ...stock.BalanceKey)
}

// Service is the posting coordinator: it owns draft CRUD and runs every
// stock-affecting action as one atomic unit of work.
type Service struct {
	repo        RepositoryPort
	master      MasterDataPort
	checker     *AvailabilityChecker
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	metrics     MetricsPort
	snapshots   SnapshotInvalidator
}

// NewService builds Service. audit, idempotency, metrics and snapshots may
// be nil.
func NewService(repo RepositoryPort, master MasterDataPort, checker *AvailabilityChecker,
	audit AuditPort, idempotency *shared.IdempotencyStore, metrics MetricsPort,
	snapshots SnapshotInvalidator) *Service {
	return &Service{
		repo:        repo,
		master:      master,
		checker:     checker,
		audit:       audit,
		idempotency: idempotency,
		metrics:     metrics,
		snapshots:   snapshots,
	}
}

// Get fetches one transaction with lines.
func (s *Service) Get(ctx context.Context, kind Kind, id int64) (Transaction, error) {
	if !kind.IsValid() {
		return Transaction{}, NewValidationError("jenis transaksi tidak dikenal")
	}
	return s.repo.Get(ctx, kind, id)
}

// List pages transactions of one kind.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Transaction, int, error) {
	if !f.Kind.IsValid() {
		return nil, 0, NewValidationError("jenis transaksi tidak dikenal")
	}
	return s.repo.List(ctx, f)
}

// CreateDraft creates a draft transaction with its lines. No stock effect.
func (s *Service) CreateDraft(ctx context.Context, kind Kind, req CreateRequest, actorID int64) (Transaction, error) {
	if !kind.IsValid() {
		return Transaction{}, NewValidationError("jenis transaksi tidak dikenal")
	}
	if err := s.validateDraft(ctx, kind, req); err != nil {
		return Transaction{}, err
	}
	trx := Transaction{
		Kind:            kind,
		Date:            req.Date,
		CounterpartyID:  req.CounterpartyID,
		WarehouseID:     req.WarehouseID,
		DestWarehouseID: req.DestWarehouseID,
		DeliveryOption:  req.DeliveryOption,
		Notes:           req.Notes,
		CreatedBy:       actorID,
		Lines:           buildLines(req.Lines),
	}
	return s.repo.Create(ctx, trx)
}

func buildLines(reqs []LineRequest) []Line {
	lines := make([]Line, 0, len(reqs))
	for _, lr := range reqs {
		lines = append(lines, Line{
			ItemID:    lr.ItemID,
			Quantity:  lr.Quantity,
			UnitPrice: lr.UnitPrice,
			Subtotal:  lr.UnitPrice.Mul(decimal.NewFromInt(lr.Quantity)),
			Reason:    lr.Reason,
			Condition: lr.Condition,
		})
	}
	return lines
}

// UpdateDraft rewrites a draft's header and lines.
func (s *Service) UpdateDraft(ctx context.Context, kind Kind, id int64, req UpdateRequest) (Transaction, error) {
	existing, err := s.Get(ctx, kind, id)
	if err != nil {
		return Transaction{}, err
	}
	if !existing.Status.CanEdit() {
		return Transaction{}, &Error{
			Kind:    KindIllegalTransition,
			Message: fmt.Sprintf("transaksi %s tidak bisa diubah pada status %q", existing.DocNumber, existing.Status),
		}
	}
	if err := s.validateDraft(ctx, kind, req); err != nil {
		return Transaction{}, err
	}
	existing.Date = req.Date
	existing.CounterpartyID = req.CounterpartyID
	existing.WarehouseID = req.WarehouseID
	existing.DestWarehouseID = req.DestWarehouseID
	existing.DeliveryOption = req.DeliveryOption
	existing.Notes = req.Notes
	existing.Lines = buildLines(req.Lines)
	if err := s.repo.Update(ctx, existing); err != nil {
		return Transaction{}, err
	}
	return s.Get(ctx, kind, id)
}

// DeleteDraft removes a draft with its lines. Nothing was ever posted, so
// the ledger is untouched.
func (s *Service) DeleteDraft(ctx context.Context, kind Kind, id int64) error {
	existing, err := s.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	if !existing.Status.CanEdit() {
		return &Error{
			Kind:    KindIllegalTransition,
			Message: fmt.Sprintf("transaksi %s tidak bisa dihapus pada status %q", existing.DocNumber, existing.Status),
		}
	}
	return s.repo.Delete(ctx, kind, id)
}

// CheckStock runs the read-only availability dry run for a delivery note.
// The report may lag concurrent postings; posting re-checks under locks.
func (s *Service) CheckStock(ctx context.Context, id int64) (AvailabilityReport, error) {
	trx, err := s.Get(ctx, KindDeliveryNote, id)
	if err != nil {
		return AvailabilityReport{}, err
	}
	return s.checker.Check(ctx, trx)
}

// Post runs one workflow action as a single atomic unit: state machine
// check, enforcing availability check, balance deltas plus ledger entries,
// then the status change. Any failure rolls back everything.
func (s *Service) Post(ctx context.Context, kind Kind, id int64, action Action, actorID int64) (PostingResult, error) {
	if !kind.IsValid() {
		return PostingResult{}, NewValidationError("jenis transaksi tidak dikenal")
	}

	var idemKey string
	insertedKey := false
	// fulfill may legally run more than once per document
	if s.idempotency != nil && action != ActionFulfill {
		idemKey = fmt.Sprintf("%s:%d:%s", kind, id, action)
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, "transaction"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				s.observe(kind, action, "conflict")
				return PostingResult{}, NewConcurrentModification()
			}
			return PostingResult{}, err
		}
		insertedKey = true
	}

	now := time.Now().UTC()
	var result PostingResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		trx, err := tx.GetForUpdate(ctx, kind, id)
		if err != nil {
			return err
		}
		next, err := Transition(kind, trx.Status, action)
		if err != nil {
			return err
		}
		plan, err := s.buildPlan(ctx, tx, &trx, action, now, actorID)
		if err != nil {
			return err
		}

		ledger := tx.Ledger()
		for _, pm := range plan.movements {
			entry, err := ledger.Apply(ctx, pm.movement)
			if err != nil {
				if errors.Is(err, stock.ErrInsufficientStock) {
					return NewInsufficientStock([]string{err.Error()})
				}
				return err
			}
			result.LineStock = append(result.LineStock, LineStockLevel{
				LineID:      pm.lineID,
				ItemID:      entry.ItemID,
				WarehouseID: entry.WarehouseID,
				Quantity:    entry.RunningBalanceAfter,
				Posted:      true,
			})
		}
		for _, lineID := range plan.postLines {
			if err := tx.MarkLinePosted(ctx, lineID, now); err != nil {
				return err
			}
		}
		for _, mark := range plan.dropshipMarks {
			if err := tx.SetLineDropship(ctx, mark.lineID, true, mark.status); err != nil {
				return err
			}
		}
		if err := tx.UpdateStatus(ctx, id, next, action, actorID, now); err != nil {
			return err
		}

		applyPlanLocally(&trx, plan, next, action, actorID, now)
		result.Transaction = trx
		result.Status = next
		result.DropshipPending = plan.pending
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		if IsSerializationFailure(err) {
			s.observe(kind, action, "conflict")
			return PostingResult{}, NewConcurrentModification()
		}
		s.observe(kind, action, "failure")
		return PostingResult{}, err
	}

	s.observe(kind, action, "success")
	s.invalidate(ctx, result)
	s.record(ctx, kind, action, actorID, result)
	return result, nil
}

func (s *Service) observe(kind Kind, action Action, outcome string) {
	if s.metrics != nil {
		s.metrics.ObservePosting(string(kind), string(action), outcome)
	}
}

func (s *Service) invalidate(ctx context.Context, result PostingResult) {
	if s.snapshots == nil || len(result.LineStock) == 0 {
		return
	}
	keys := make([]stock.BalanceKey, 0, len(result.LineStock))
	for _, ls := range result.LineStock {
		keys = append(keys, stock.BalanceKey{ItemID: ls.ItemID, WarehouseID: ls.WarehouseID})
	}
	s.snapshots.InvalidateSnapshots(ctx, keys...)
}

func (s *Service) record(ctx context.Context, kind Kind, action Action, actorID int64, result PostingResult) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   fmt.Sprintf("transaction:%s", action),
		Entity:   string(kind),
		EntityID: fmt.Sprintf("%d", result.Transaction.ID),
		Meta: map[string]any{
			"doc_number": result.Transaction.DocNumber,
			"status":     string(result.Status),
			"movements":  len(result.LineStock),
		},
	})
}

// AdvanceDropship moves one dropship line forward in the fixed progression
// pending -> ordered -> received. Marking a line received does not move
// stock; the matching goods receipt does, and fulfill ships it afterwards.
func (s *Service) AdvanceDropship(ctx context.Context, id, lineID int64, target DropshipStatus, actorID int64) (Transaction, error) {
	var updated Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		trx, err := tx.GetForUpdate(ctx, KindDeliveryNote, id)
		if err != nil {
			return err
		}
		var line *Line
		for i := range trx.Lines {
			if trx.Lines[i].ID == lineID {
				line = &trx.Lines[i]
				break
			}
		}
		if line == nil {
			return ErrNotFound
		}
		if !line.Dropship {
			return NewValidationError("baris ini bukan baris dropship")
		}
		if line.StockPosted() {
			return NewValidationError("baris dropship sudah dikirim")
		}
		if !CanAdvanceDropship(line.DropshipStatus, target) {
			return &Error{
				Kind:    KindIllegalTransition,
				Message: fmt.Sprintf("status dropship %q tidak bisa berpindah ke %q", line.DropshipStatus, target),
			}
		}
		if err := tx.SetLineDropship(ctx, lineID, true, target); err != nil {
			return err
		}
		line.DropshipStatus = target
		updated = trx
		return nil
	})
	if err != nil {
		if IsSerializationFailure(err) {
			return Transaction{}, NewConcurrentModification()
		}
		return Transaction{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "transaction:dropship",
			Entity:   string(KindDeliveryNote),
			EntityID: fmt.Sprintf("%d", id),
			Meta:     map[string]any{"line_id": lineID, "dropship_status": string(target)},
		})
	}
	return updated, nil
}

type plannedMovement struct {
	lineID   int64
	movement stock.Movement
}

type dropshipMark struct {
	lineID int64
	status DropshipStatus
}

type postingPlan struct {
	movements     []plannedMovement
	postLines     []int64
	dropshipMarks []dropshipMark
	pending       []Line
}

// lockBalances row-locks every involved balance in sorted key order so two
// postings touching the same pairs serialize instead of deadlocking.
func lockBalances(ctx context.Context, ledger stock.TxStore, keys map[stock.BalanceKey]bool) (map[stock.BalanceKey]int64, error) {
	ordered := make([]stock.BalanceKey, 0, len(keys))
	for key := range keys {
		ordered = append(ordered, key)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].ItemID != ordered[j].ItemID {
			return ordered[i].ItemID < ordered[j].ItemID
		}
		return ordered[i].WarehouseID < ordered[j].WarehouseID
	})
	balances := make(map[stock.BalanceKey]int64, len(ordered))
	for _, key := range ordered {
		qty, err := ledger.BalanceForUpdate(ctx, key.ItemID, key.WarehouseID)
		if err != nil {
			return nil, err
		}
		balances[key] = qty
	}
	return balances, nil
}

// buildPlan decides, per kind and action, which movements to apply and which
// lines change state. It performs the enforcing availability check against
// row-locked balances, so its verdict cannot be raced by other postings.
func (s *Service) buildPlan(ctx context.Context, tx TxRepository, trx *Transaction, action Action, now time.Time, actorID int64) (postingPlan, error) {
	var plan postingPlan

	switch {
	case trx.Kind == KindGoodsReceipt && action == ActionPost:
		for _, line := range trx.Lines {
			plan.movements = append(plan.movements, plannedMovement{
				lineID:   line.ID,
				movement: s.movement(trx, line, stock.DirectionIn, trx.WarehouseID, now, actorID),
			})
			plan.postLines = append(plan.postLines, line.ID)
		}

	case trx.Kind == KindSalesReturn && action == ActionApprove:
		for _, line := range trx.Lines {
			if line.Condition != ConditionResalable {
				// total loss never re-enters stock
				continue
			}
			plan.movements = append(plan.movements, plannedMovement{
				lineID:   line.ID,
				movement: s.movement(trx, line, stock.DirectionIn, trx.WarehouseID, now, actorID),
			})
			plan.postLines = append(plan.postLines, line.ID)
		}

	case trx.Kind == KindPurchaseReturn && action == ActionApprove:
		if err := s.planOutbound(ctx, tx, trx, &plan, trx.Lines, now, actorID); err != nil {
			return postingPlan{}, err
		}

	case trx.Kind == KindTransfer && action == ActionPost:
		if err := s.planTransfer(ctx, tx, trx, &plan, now, actorID); err != nil {
			return postingPlan{}, err
		}

	case trx.Kind == KindDeliveryNote && action == ActionPost:
		if err := s.planDelivery(ctx, tx, trx, &plan, now, actorID); err != nil {
			return postingPlan{}, err
		}

	case trx.Kind == KindDeliveryNote && action == ActionFulfill:
		if err := s.planFulfill(ctx, tx, trx, &plan, now, actorID); err != nil {
			return postingPlan{}, err
		}

	case trx.Kind == KindDeliveryNote && action == ActionDeliver:
		for _, line := range trx.Lines {
			if line.Dropship && !line.StockPosted() {
				return postingPlan{}, NewValidationError(
					"masih ada baris dropship yang belum dikirim",
					fmt.Sprintf("baris %d: dropship %s", line.ID, line.DropshipStatus))
			}
		}

	default:
		// deliver on transfers, complete on returns, cancel everywhere:
		// status-only actions with no stock effect
	}
	return plan, nil
}

func (s *Service) movement(trx *Transaction, line Line, direction stock.Direction, warehouseID int64, now time.Time, actorID int64) stock.Movement {
	return stock.Movement{
		ItemID:      line.ItemID,
		WarehouseID: warehouseID,
		Direction:   direction,
		Quantity:    line.Quantity,
		UnitValue:   line.UnitPrice,
		SourceID:    trx.ID,
		SourceKind:  string(trx.Kind),
		SourceDoc:   trx.DocNumber,
		OccurredAt:  now,
		ActorID:     actorID,
	}
}

// planOutbound plans plain stock-decreasing lines, failing the whole action
// when any line is short.
func (s *Service) planOutbound(ctx context.Context, tx TxRepository, trx *Transaction, plan *postingPlan, lines []Line, now time.Time, actorID int64) error {
	keys := make(map[stock.BalanceKey]bool, len(lines))
	for _, line := range lines {
		keys[stock.BalanceKey{ItemID: line.ItemID, WarehouseID: trx.WarehouseID}] = true
	}
	balances, err := lockBalances(ctx, tx.Ledger(), keys)
	if err != nil {
		return err
	}
	items, err := s.master.GetItems(ctx, itemIDs(lines))
	if err != nil {
		return fmt.Errorf("transaction: load items: %w", err)
	}

	var shortages []string
	for _, line := range lines {
		key := stock.BalanceKey{ItemID: line.ItemID, WarehouseID: trx.WarehouseID}
		if balances[key] < line.Quantity {
			shortages = append(shortages, shortageDetail(items[line.ItemID].Name, balances[key], line.Quantity))
			continue
		}
		balances[key] -= line.Quantity
		plan.movements = append(plan.movements, plannedMovement{
			lineID:   line.ID,
			movement: s.movement(trx, line, stock.DirectionOut, trx.WarehouseID, now, actorID),
		})
		plan.postLines = append(plan.postLines, line.ID)
	}
	if len(shortages) > 0 {
		return NewInsufficientStock(shortages)
	}
	return nil
}

// planTransfer plans the OUT(origin) + IN(destination) pair per line,
// applied atomically with the status change.
func (s *Service) planTransfer(ctx context.Context, tx TxRepository, trx *Transaction, plan *postingPlan, now time.Time, actorID int64) error {
	keys := make(map[stock.BalanceKey]bool, len(trx.Lines))
	for _, line := range trx.Lines {
		keys[stock.BalanceKey{ItemID: line.ItemID, WarehouseID: trx.WarehouseID}] = true
		keys[stock.BalanceKey{ItemID: line.ItemID, WarehouseID: trx.DestWarehouseID}] = true
	}
	balances, err := lockBalances(ctx, tx.Ledger(), keys)
	if err != nil {
		return err
	}
	items, err := s.master.GetItems(ctx, itemIDs(trx.Lines))
	if err != nil {
		return fmt.Errorf("transaction: load items: %w", err)
	}

	var shortages []string
	for _, line := range trx.Lines {
		origin := stock.BalanceKey{ItemID: line.ItemID, WarehouseID: trx.WarehouseID}
		if balances[origin] < line.Quantity {
			shortages = append(shortages, shortageDetail(items[line.ItemID].Name, balances[origin], line.Quantity))
			continue
		}
		balances[origin] -= line.Quantity
		plan.movements = append(plan.movements,
			plannedMovement{lineID: line.ID, movement: s.movement(trx, line, stock.DirectionOut, trx.WarehouseID, now, actorID)},
			plannedMovement{lineID: line.ID, movement: s.movement(trx, line, stock.DirectionIn, trx.DestWarehouseID, now, actorID)},
		)
		plan.postLines = append(plan.postLines, line.ID)
	}
	if len(shortages) > 0 {
		return NewInsufficientStock(shortages)
	}
	return nil
}

// planDelivery resolves every line of a draft delivery note: ship from
// owned stock, park as pending dropship, or fail per the delivery option.
func (s *Service) planDelivery(ctx context.Context, tx TxRepository, trx *Transaction, plan *postingPlan, now time.Time, actorID int64) error {
	keys := make(map[stock.BalanceKey]bool, len(trx.Lines))
	for _, line := range trx.Lines {
		keys[stock.BalanceKey{ItemID: line.ItemID, WarehouseID: trx.WarehouseID}] = true
	}
	balances, err := lockBalances(ctx, tx.Ledger(), keys)
	if err != nil {
		return err
	}
	items, err := s.master.GetItems(ctx, itemIDs(trx.Lines))
	if err != nil {
		return fmt.Errorf("transaction: load items: %w", err)
	}

	var shortages []string
	var notEligible []string
	for _, line := range trx.Lines {
		key := stock.BalanceKey{ItemID: line.ItemID, WarehouseID: trx.WarehouseID}
		item := items[line.ItemID]
		resolution, err := ResolveLine(line, item, balances[key])
		if err != nil {
			if trx.DeliveryOption == DeliveryComplete {
				// complete deliveries report plain shortage regardless
				// of dropship eligibility
				shortages = append(shortages, shortageDetail(item.Name, balances[key], line.Quantity))
			} else if domainErr, ok := AsError(err); ok {
				notEligible = append(notEligible, domainErr.Details...)
			} else {
				return err
			}
			continue
		}
		if resolution.Fulfillment == FulfillDropship {
			if trx.DeliveryOption == DeliveryComplete {
				shortages = append(shortages, shortageDetail(item.Name, balances[key], line.Quantity))
				continue
			}
			marked := line
			marked.Dropship = true
			marked.DropshipStatus = resolution.DropshipStatus
			plan.dropshipMarks = append(plan.dropshipMarks, dropshipMark{lineID: line.ID, status: resolution.DropshipStatus})
			plan.pending = append(plan.pending, marked)
			continue
		}
		balances[key] -= line.Quantity
		plan.movements = append(plan.movements, plannedMovement{
			lineID:   line.ID,
			movement: s.movement(trx, line, stock.DirectionOut, trx.WarehouseID, now, actorID),
		})
		plan.postLines = append(plan.postLines, line.ID)
	}
	if len(shortages) > 0 {
		return NewInsufficientStock(shortages)
	}
	if len(notEligible) > 0 {
		return NewDropshipNotEligible(notEligible)
	}
	return nil
}

// planFulfill posts the received dropship lines of an in-transit delivery.
// Only the previously-pending lines are re-checked.
func (s *Service) planFulfill(ctx context.Context, tx TxRepository, trx *Transaction, plan *postingPlan, now time.Time, actorID int64) error {
	var ready []Line
	for _, line := range trx.Lines {
		if !line.Dropship || line.StockPosted() {
			continue
		}
		if line.DropshipStatus == DropshipReceived {
			ready = append(ready, line)
		} else {
			plan.pending = append(plan.pending, line)
		}
	}
	if len(ready) == 0 {
		return NewValidationError("tidak ada baris dropship yang siap dikirim")
	}
	if err := s.planOutbound(ctx, tx, trx, plan, ready, now, actorID); err != nil {
		return err
	}
	return nil
}

func itemIDs(lines []Line) []int64 {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ItemID)
	}
	return ids
}

func shortageDetail(itemName string, current, requested int64) string {
	return fmt.Sprintf("%s: stok tersedia %d, diminta %d", itemName, current, requested)
}

// applyPlanLocally mirrors the committed changes onto the in-memory copy so
// the caller gets the authoritative post-action state without a re-read.
func applyPlanLocally(trx *Transaction, plan postingPlan, next Status, action Action, actorID int64, now time.Time) {
	trx.Status = next
	trx.UpdatedAt = now
	switch action {
	case ActionPost, ActionApprove:
		trx.PostedAt = &now
		trx.PostedBy = &actorID
	case ActionDeliver:
		trx.DeliveredAt = &now
	case ActionComplete:
		trx.CompletedAt = &now
	case ActionCancel:
		trx.CancelledAt = &now
	}
	posted := make(map[int64]bool, len(plan.postLines))
	for _, id := range plan.postLines {
		posted[id] = true
	}
	marks := make(map[int64]DropshipStatus, len(plan.dropshipMarks))
	for _, mark := range plan.dropshipMarks {
		marks[mark.lineID] = mark.status
	}
	for i := range trx.Lines {
		line := &trx.Lines[i]
		if posted[line.ID] {
			line.PostedAt = &now
		}
		if status, ok := marks[line.ID]; ok {
			line.Dropship = true
			line.DropshipStatus = status
		}
	}
}
