package notify

import (
	"context"

	"freebies_claimer/internal/model"
)

type Notifier interface {
	NotifyRunSummary(ctx context.Context, summary model.RunSummary)
}

// Nop drops every summary.
type Nop struct{}

func (Nop) NotifyRunSummary(context.Context, model.RunSummary) {}
