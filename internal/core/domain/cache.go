package domain

import "context"

// ProgressCache holds computed goal progress between reads. Implementations
// must treat every failure as a miss: the ledger stays the source of truth.
type ProgressCache interface {
	Get(ctx context.Context, userID, goalID string) (*Progress, bool)
	Set(ctx context.Context, userID string, p *Progress)
	Invalidate(ctx context.Context, userID string, goalIDs ...string)
}

type NoopProgressCache struct{}

func (NoopProgressCache) Get(context.Context, string, string) (*Progress, bool) { return nil, false }
func (NoopProgressCache) Set(context.Context, string, *Progress)                {}
func (NoopProgressCache) Invalidate(context.Context, string, ...string)         {}
