package external

import "github.com/stripe/stripe-go/v72/client"

// NewStripeClient returns the API client used to mirror the plan catalog as
// Products/Prices and to register business owners as Stripe customers
func NewStripeClient(key string) *client.API {
	sc := &client.API{}
	sc.Init(key, nil)
	return sc
}
