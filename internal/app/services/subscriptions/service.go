// Package subscriptions processes commerce order webhooks into persisted
// subscription state.
package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mockupforge/mockupforge/internal/app/domain/subscription"
	"github.com/mockupforge/mockupforge/internal/app/storage"
	"github.com/mockupforge/mockupforge/pkg/logger"
)

// Outcome reports what an order webhook did.
type Outcome struct {
	// Processed is false when the order carried no recognizable plan line
	// item. That is a success, not an error: most orders are not
	// subscription purchases.
	Processed    bool
	Subscription subscription.Subscription
}

// Service applies order webhooks to the subscription store.
type Service struct {
	store storage.SubscriptionStore
	log   *logger.Logger
	now   func() time.Time
}

// New constructs a subscriptions service.
func New(store storage.SubscriptionStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("subscriptions")
	}
	return &Service{store: store, log: log, now: time.Now}
}

// ProcessOrder inspects an order payload for a plan line item and upserts
// the customer's subscription with fresh credits and a renewal date one
// month out. Orders without a customer id or plan item are skipped.
func (s *Service) ProcessOrder(ctx context.Context, payload []byte) (Outcome, error) {
	if !gjson.ValidBytes(payload) {
		return Outcome{}, fmt.Errorf("invalid order payload")
	}

	customerID := gjson.GetBytes(payload, "customer.id").String()
	if customerID == "" || customerID == "0" {
		s.log.Debug("order without customer, skipping")
		return Outcome{}, nil
	}
	email := gjson.GetBytes(payload, "customer.email").String()

	var plan subscription.Plan
	matched := false
	gjson.GetBytes(payload, "line_items.#.title").ForEach(func(_, title gjson.Result) bool {
		if p, ok := subscription.PlanFromTitle(title.String()); ok {
			plan = p
			matched = true
			return false
		}
		return true
	})
	if !matched {
		s.log.WithField("customer_id", customerID).Debug("order without plan line item, skipping")
		return Outcome{}, nil
	}

	now := s.now().UTC()
	sub := subscription.Subscription{
		CustomerID:  customerID,
		Email:       email,
		Plan:        plan.Name,
		Credits:     plan.Credits,
		RenewalDate: now.AddDate(0, 1, 0),
	}

	saved, err := s.store.UpsertSubscription(ctx, sub)
	if err != nil {
		return Outcome{}, fmt.Errorf("upsert subscription: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"customer_id": customerID,
		"plan":        plan.Name,
	}).Info("subscription updated from order")
	return Outcome{Processed: true, Subscription: saved}, nil
}

// Lookup returns the subscription for a customer.
func (s *Service) Lookup(ctx context.Context, customerID string) (subscription.Subscription, error) {
	return s.store.GetSubscription(ctx, customerID)
}
