package plans

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spacesedan/leadscout/internal/models"
)

const (
	FreeTrial = "free_trial"
	Starter   = "starter"
	Growth    = "growth"
	Agency    = "agency"
)

// DefaultLimits is the PLAN_LIMITS value used when the environment does not set one.
const DefaultLimits = "free_trial=1/5,starter=3/25,growth=10/100,agency=50/500"

// Table maps plan ids to their limits. It is built once from configuration and
// passed to the components that enforce limits.
type Table map[string]models.PlanLimits

// Decode parses "plan=maxSubreddits/maxLeadsPerDay" pairs separated by commas.
func (t *Table) Decode(value string) error {
	parsed := Table{}
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, limits, ok := strings.Cut(entry, "=")
		if !ok {
			return fmt.Errorf("plan entry %q: missing '='", entry)
		}
		subs, leads, ok := strings.Cut(limits, "/")
		if !ok {
			return fmt.Errorf("plan entry %q: expected maxSubreddits/maxLeadsPerDay", entry)
		}
		maxSubs, err := strconv.Atoi(strings.TrimSpace(subs))
		if err != nil || maxSubs < 0 {
			return fmt.Errorf("plan entry %q: bad maxSubreddits", entry)
		}
		maxLeads, err := strconv.Atoi(strings.TrimSpace(leads))
		if err != nil || maxLeads < 0 {
			return fmt.Errorf("plan entry %q: bad maxLeadsPerDay", entry)
		}
		parsed[strings.TrimSpace(name)] = models.PlanLimits{MaxSubreddits: maxSubs, MaxLeadsPerDay: maxLeads}
	}
	if len(parsed) == 0 {
		return fmt.Errorf("plan table is empty")
	}
	*t = parsed
	return nil
}

func (t Table) String() string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		l := t[name]
		parts = append(parts, fmt.Sprintf("%s=%d/%d", name, l.MaxSubreddits, l.MaxLeadsPerDay))
	}
	return strings.Join(parts, ",")
}

// UserPlans resolves which plan a user is on.
type UserPlans interface {
	PlanIDFor(ctx context.Context, userID string) (string, error)
}

// Provider answers limitsFor(userId) from an injected Table.
type Provider struct {
	table       Table
	users       UserPlans
	defaultPlan string
}

func NewProvider(table Table, users UserPlans, defaultPlan string) *Provider {
	return &Provider{table: table, users: users, defaultPlan: defaultPlan}
}

// LimitsFor returns the limits of the user's plan. Unknown users and plans fall
// back to the default plan; a missing default plan yields zero limits.
func (p *Provider) LimitsFor(ctx context.Context, userID string) (models.PlanLimits, error) {
	planID, err := p.users.PlanIDFor(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		planID, err = p.defaultPlan, nil
	}
	if err != nil {
		return models.PlanLimits{}, fmt.Errorf("resolve plan for user %s: %w", userID, err)
	}
	if limits, ok := p.table[planID]; ok {
		return limits, nil
	}
	return p.table[p.defaultPlan], nil
}
