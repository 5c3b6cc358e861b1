package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/spacesedan/leadscout/internal/models"
)

type SpendReader interface {
	SpendSince(ctx context.Context, userID string, since time.Time) (models.Spend, error)
}

// Budget holds daily ceilings. Zero disables a ceiling.
type Budget struct {
	UserDailyTokens    int64
	UserDailyCostUSD   float64
	GlobalDailyCostUSD float64
}

// BudgetGuard refuses AI calls once the current UTC day's spend reaches a ceiling.
type BudgetGuard struct {
	spend  SpendReader
	budget Budget
	now    func() time.Time
}

func NewBudgetGuard(spend SpendReader, budget Budget) *BudgetGuard {
	return &BudgetGuard{spend: spend, budget: budget, now: time.Now}
}

func (g *BudgetGuard) WithClock(now func() time.Time) *BudgetGuard {
	g.now = now
	return g
}

// Check returns ErrEnrichmentBudgetExceeded when userID or the whole system is
// over budget for today.
func (g *BudgetGuard) Check(ctx context.Context, userID string) error {
	startOfDay := g.now().UTC().Truncate(24 * time.Hour)

	if g.budget.UserDailyTokens > 0 || g.budget.UserDailyCostUSD > 0 {
		spend, err := g.spend.SpendSince(ctx, userID, startOfDay)
		if err != nil {
			return fmt.Errorf("[BudgetGuard] read spend for %s: %w", userID, err)
		}
		if g.budget.UserDailyTokens > 0 && spend.Tokens >= g.budget.UserDailyTokens {
			return fmt.Errorf("%w: user %s used %d of %d tokens today",
				models.ErrEnrichmentBudgetExceeded, userID, spend.Tokens, g.budget.UserDailyTokens)
		}
		if g.budget.UserDailyCostUSD > 0 && spend.CostUSD >= g.budget.UserDailyCostUSD {
			return fmt.Errorf("%w: user %s spent $%.4f of $%.2f today",
				models.ErrEnrichmentBudgetExceeded, userID, spend.CostUSD, g.budget.UserDailyCostUSD)
		}
	}

	if g.budget.GlobalDailyCostUSD > 0 {
		spend, err := g.spend.SpendSince(ctx, "", startOfDay)
		if err != nil {
			return fmt.Errorf("[BudgetGuard] read global spend: %w", err)
		}
		if spend.CostUSD >= g.budget.GlobalDailyCostUSD {
			return fmt.Errorf("%w: global spend $%.4f of $%.2f today",
				models.ErrEnrichmentBudgetExceeded, spend.CostUSD, g.budget.GlobalDailyCostUSD)
		}
	}
	return nil
}
