package stock

import (
	"context"
	"errors"

	"github.com/radityprtama/stock-app/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	GetBalance(ctx context.Context, itemID, warehouseID int64) (int64, error)
	ListMovements(ctx context.Context, f MovementFilter) ([]LedgerEntry, int, error)
	MovementStats(ctx context.Context, f MovementFilter) (MovementStats, error)
	FindDivergences(ctx context.Context) ([]Divergence, error)
}

// Service serves kartu stok reads and advisory balance lookups.
type Service struct {
	repo  RepositoryPort
	cache *SnapshotCache
}

// NewService builds Service. The cache may be nil, in which case every
// advisory read hits the repository.
func NewService(repo RepositoryPort, cache *SnapshotCache) *Service {
	return &Service{repo: repo, cache: cache}
}

// StockCard is the kartu stok projection: one page of entries plus the
// statistics block for the whole filtered range.
type StockCard struct {
	Entries    []LedgerEntry     `json:"entries"`
	Stats      MovementStats     `json:"statistics"`
	Pagination shared.Pagination `json:"pagination"`
}

// GetStockCard lists ledger entries with running balances and derived
// statistics, replaying history independently of the live balance table.
func (s *Service) GetStockCard(ctx context.Context, f MovementFilter) (StockCard, error) {
	if f.ItemID == 0 {
		return StockCard{}, errors.New("stock: item is required")
	}
	if f.PerPage <= 0 {
		f.PerPage = 20
	}
	if f.PerPage > 200 {
		f.PerPage = 200
	}
	if f.Page <= 0 {
		f.Page = 1
	}

	entries, total, err := s.repo.ListMovements(ctx, f)
	if err != nil {
		return StockCard{}, err
	}
	stats, err := s.repo.MovementStats(ctx, f)
	if err != nil {
		return StockCard{}, err
	}
	return StockCard{
		Entries:    entries,
		Stats:      stats,
		Pagination: shared.NewPagination(f.Page, f.PerPage, total),
	}, nil
}

// Balance reads the authoritative live quantity.
func (s *Service) Balance(ctx context.Context, itemID, warehouseID int64) (int64, error) {
	return s.repo.GetBalance(ctx, itemID, warehouseID)
}

// AdvisoryBalance reads through the snapshot cache. The result may lag
// concurrent postings; callers must not treat it as authoritative.
func (s *Service) AdvisoryBalance(ctx context.Context, itemID, warehouseID int64) (int64, error) {
	key := BalanceKey{ItemID: itemID, WarehouseID: warehouseID}
	if qty, ok := s.cache.Get(ctx, key); ok {
		return qty, nil
	}
	qty, err := s.repo.GetBalance(ctx, itemID, warehouseID)
	if err != nil {
		return 0, err
	}
	s.cache.Set(ctx, key, qty)
	return qty, nil
}

// InvalidateSnapshots drops cached balances after a committed posting.
func (s *Service) InvalidateSnapshots(ctx context.Context, keys ...BalanceKey) {
	s.cache.Invalidate(ctx, keys...)
}

// Reconcile compares every live balance against its ledger fold.
func (s *Service) Reconcile(ctx context.Context) ([]Divergence, error) {
	return s.repo.FindDivergences(ctx)
}
