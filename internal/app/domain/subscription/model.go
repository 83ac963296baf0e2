// Package subscription defines commerce subscription records and the plan
// inference applied to order line items.
package subscription

import (
	"strings"
	"time"
)

// Subscription is the persisted plan state for one customer, upserted keyed
// on CustomerID. Credits is nil for unlimited plans.
type Subscription struct {
	CustomerID  string
	Email       string
	Plan        string
	Credits     *int
	RenewalDate time.Time
	UpdatedAt   time.Time
}

// Plan is a named subscription tier with its credit allotment. Credits is
// nil for the unlimited tier.
type Plan struct {
	Name    string
	Credits *int
}

var (
	starterCredits = 200
	creatorCredits = 1000

	// plans are matched by substring against line item titles, in order.
	plans = []struct {
		keyword string
		plan    Plan
	}{
		{"Starter", Plan{Name: "starter", Credits: &starterCredits}},
		{"Creator", Plan{Name: "creator", Credits: &creatorCredits}},
		{"Pro", Plan{Name: "pro", Credits: nil}},
	}
)

// PlanFromTitle infers a plan from a line item title by substring match
// against the known tier names. The second return is false when no tier
// matches.
func PlanFromTitle(title string) (Plan, bool) {
	for _, p := range plans {
		if strings.Contains(title, p.keyword) {
			plan := Plan{Name: p.plan.Name}
			if p.plan.Credits != nil {
				credits := *p.plan.Credits
				plan.Credits = &credits
			}
			return plan, true
		}
	}
	return Plan{}, false
}
