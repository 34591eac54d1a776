package payment

// Stripe, PayPal and Square differ only in naming and the metadata they
// attach to an authorization.

// NewStripe constructs the Stripe family.
var NewStripe = newSimulated(profile{
	id:          ProviderStripe,
	displayName: "Stripe",
	metadata: func(token string) map[string]string {
		return map[string]string{
			"stripe_version": "2023-10-16",
			"payment_method": "card",
			"card_token":     token,
		}
	},
})

// NewPayPal constructs the PayPal family.
var NewPayPal = newSimulated(profile{
	id:          ProviderPayPal,
	displayName: "PayPal",
	metadata: func(token string) map[string]string {
		return map[string]string{
			"paypal_version": "v2",
			"payment_type":   "instant",
			"token":          token,
		}
	},
})

// NewSquare constructs the Square family.
var NewSquare = newSimulated(profile{
	id:          ProviderSquare,
	displayName: "Square",
	metadata: func(token string) map[string]string {
		return map[string]string{
			"square_version": "2023-12-13",
			"location_id":    "loc_123",
			"card_nonce":     token,
		}
	},
})

// RegisterBuiltins registers stripe, paypal and square in that order.
// configs is keyed by provider id; missing entries use base.
func RegisterBuiltins(r *Registry, base BackendConfig, configs map[string]BackendConfig) error {
	builtins := []struct {
		id   string
		ctor Constructor
	}{
		{ProviderStripe, NewStripe},
		{ProviderPayPal, NewPayPal},
		{ProviderSquare, NewSquare},
	}
	for _, b := range builtins {
		cfg := base
		if c, ok := configs[b.id]; ok {
			if c.Ledger == nil {
				c.Ledger = base.Ledger
			}
			if c.Latency == nil {
				c.Latency = base.Latency
			}
			cfg = c
		}
		if err := r.Register(b.id, b.ctor, cfg); err != nil {
			return err
		}
	}
	return nil
}
