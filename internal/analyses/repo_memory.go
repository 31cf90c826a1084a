package analyses

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo keeps analysis runs in memory for dev mode and tests.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Analysis
}

// NewMemoryRepo constructs an empty in-memory repo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]Analysis)}
}

func (r *MemoryRepo) Create(ctx context.Context, analysis Analysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[analysis.ID] = analysis
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	analysis, ok := r.data[analysisID]
	if !ok {
		return Analysis{}, ErrNotFound
	}
	return analysis, nil
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, update StatusUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	analysis, ok := r.data[update.ID]
	if !ok {
		return ErrNotFound
	}
	analysis.Status = update.Status
	if update.Result != nil {
		analysis.Result = update.Result
	}
	analysis.ErrorCode = update.ErrorCode
	analysis.ErrorMessage = update.ErrorMessage
	if update.StartedAt != nil {
		analysis.StartedAt = update.StartedAt
	}
	if update.CompletedAt != nil {
		analysis.CompletedAt = update.CompletedAt
	}
	r.data[update.ID] = analysis
	return nil
}

func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []Analysis
	for _, analysis := range r.data {
		if analysis.UserID == userID {
			all = append(all, analysis)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

var _ Repo = (*MemoryRepo)(nil)
