package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/zllovesuki/stayhub/quota"

	extErrors "github.com/pkg/errors"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
)

// Limits is the set of quotas and capabilities a Plan grants.
// A limit of -1 means unlimited
type Limits struct {
	MaxPlaces       int  `json:"maxPlaces"`
	MaxBlogs        int  `json:"maxBlogs"`
	MaxPhotos       int  `json:"maxPhotos"`
	FeaturedListing bool `json:"featuredListing"`
	AnalyticsAccess bool `json:"analyticsAccess"`
	PrioritySupport bool `json:"prioritySupport"`
}

// For returns the limit for a countable resource kind. Unknown kinds get 0,
// which the quota gate treats as fail-closed
func (l Limits) For(kind quota.ResourceKind) int {
	switch kind {
	case quota.KindPlaces:
		return l.MaxPlaces
	case quota.KindBlogs:
		return l.MaxBlogs
	case quota.KindPhotos:
		return l.MaxPhotos
	}
	return 0
}

// Plan describes a purchasable tier. This corresponds to Stripe's "Product"
type Plan struct {
	ID            string `json:"id"`            // Corresponds to Stripe's Product ID, populated by ensureExistence
	PriceID       string `json:"priceId"`       // Corresponds to Stripe's Price ID, populated by ensureExistence
	Name          string `json:"name"`          // Shown to the customer and on Stripe
	Description   string `json:"description"`   // Shown to the customer
	AmountInCents int64  `json:"amountInCents"` // Recurring price per Interval
	Currency      string `json:"currency"`      // The ISO currency code (e.g. usd)
	Interval      string `json:"interval"`      // Billing cycle (month/year)
	TrialDays     int    `json:"trialDays"`     // Length of the free trial when the owner starts on one
	Limits        Limits `json:"limits"`        // Quotas and capabilities granted by this Plan
	Retired       bool   `json:"retired"`       // Flag if the Plan is no longer purchasable (Archived on Stripe)
}

// loadPlansFromFile will read from the plan JSON file to define what plans are
// available for purchase. ID fields will be populated via ensureExistence.
// Changing Name/AmountInCents/Currency/Interval of an existing Plan creates a
// new Price on Stripe; make a new Plan and mark the old one Retired instead
func loadPlansFromFile(filename string) ([]Plan, error) {
	jsonBytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot open plans JSON file")
	}
	plans := make([]Plan, 0, 1)
	if err := json.Unmarshal(jsonBytes, &plans); err != nil {
		return nil, extErrors.Wrap(err, "Invalid plan JSON file")
	}
	return plans, nil
}

var lookupKeyRegex = regexp.MustCompile("[^a-zA-Z0-9]+")

// lookupKey generates a unique LookupKey on Stripe to identify the Plan's Price
func (p *Plan) lookupKey() string {
	planName := lookupKeyRegex.ReplaceAllString(p.Name, "-")
	return strings.ToLower(fmt.Sprintf("%s_%s_%d_%s", planName, p.Interval, p.AmountInCents, p.Currency))
}

// ensureExistence will ensure that a corresponding Product and Price exist on
// Stripe, and it will populate the ID fields in the Plan object
func (p *Plan) ensureExistence(ctx context.Context, s *client.API) error {
	if len(p.ID) > 0 {
		// we already have it
		return nil
	}
	lookupParams := &stripe.PriceListParams{
		ListParams: stripe.ListParams{
			Context: ctx,
		},
		Active:     stripe.Bool(true),
		LookupKeys: []*string{stripe.String(p.lookupKey())},
	}
	pricesIter := s.Prices.List(lookupParams)
	for pricesIter.Next() {
		price := pricesIter.Price()
		p.ID = price.Product.ID
		p.PriceID = price.ID
	}
	if pricesIter.Err() != nil {
		return extErrors.Wrap(pricesIter.Err(), "Cannot ensure Plan existence on Stripe")
	}

	if len(p.PriceID) > 0 {
		// synchronize retired/archived status on Stripe
		if _, err := s.Products.Update(p.ID, &stripe.ProductParams{
			Params: stripe.Params{
				Context: ctx,
			},
			Active: stripe.Bool(!p.Retired),
		}); err != nil {
			return extErrors.Wrap(err, "Cannot synchronize Plan Retired/Product Archived status on Stripe")
		}
		return nil
	}

	return p.createPlanOnStripe(ctx, s)
}

// createPlanOnStripe will create the missing Plan as Product + Price on Stripe
func (p *Plan) createPlanOnStripe(ctx context.Context, s *client.API) error {
	if len(p.ID) == 0 {
		prodParams := &stripe.ProductParams{
			Params: stripe.Params{
				Context: ctx,
				Metadata: map[string]string{
					"MaxPlaces": fmt.Sprintf("%d", p.Limits.MaxPlaces),
					"MaxBlogs":  fmt.Sprintf("%d", p.Limits.MaxBlogs),
					"MaxPhotos": fmt.Sprintf("%d", p.Limits.MaxPhotos),
				},
			},
			Active:      stripe.Bool(!p.Retired),
			Name:        stripe.String(p.Name),
			Description: stripe.String(p.Description),
		}
		stripeProduct, err := s.Products.New(prodParams)
		if err != nil {
			return extErrors.Wrap(err, "Cannot create Plan as Product on Stripe")
		}
		p.ID = stripeProduct.ID
	}

	priceParams := &stripe.PriceParams{
		Params: stripe.Params{
			Context: ctx,
		},
		Active:     stripe.Bool(true),
		Nickname:   stripe.String(p.Name),
		Currency:   stripe.String(p.Currency),
		UnitAmount: stripe.Int64(p.AmountInCents),
		Product:    stripe.String(p.ID),
		LookupKey:  stripe.String(p.lookupKey()),
		Recurring: &stripe.PriceRecurringParams{
			Interval:      stripe.String(p.Interval),
			IntervalCount: stripe.Int64(1),
			UsageType:     stripe.String("licensed"),
		},
	}
	price, err := s.Prices.New(priceParams)
	if err != nil {
		return extErrors.Wrap(err, "Cannot create Plan Price on Stripe")
	}
	p.PriceID = price.ID
	return nil
}

// nextPeriodEnd rolls a billing period forward by one Interval
func (p *Plan) nextPeriodEnd(from time.Time) time.Time {
	if p.Interval == "year" {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}
