package payment

import (
	"fmt"
	"strings"
	"sync"

	"github.com/goclaw/fulfillment/pkg/order"
	"github.com/goclaw/fulfillment/pkg/storage"
	"github.com/shopspring/decimal"
)

// Parts is what a Constructor produces for one provider.
type Parts struct {
	DisplayName string
	Processor   Processor
	Refunds     RefundHandler
	Webhooks    WebhookValidator
}

// BackendConfig carries per-provider construction settings.
type BackendConfig struct {
	// Ledger backs authorizations, captures and refund idempotency.
	Ledger storage.Storage
	// WebhookSecret is the HMAC key for webhook signatures. Empty falls back
	// to a prefix-only check.
	WebhookSecret string
	// Latency is the simulated round trip of each backend call.
	Latency LatencyFunc
}

// Constructor builds the capabilities of one provider.
type Constructor func(cfg BackendConfig) (Parts, error)

// MismatchedFamilyError is returned when a constructor produced capabilities
// that belong to different providers.
type MismatchedFamilyError struct {
	Provider   string
	Capability string
	Got        string
}

func (e *MismatchedFamilyError) Error() string {
	return fmt.Sprintf("provider %q constructor returned %s for provider %q", e.Provider, e.Capability, e.Got)
}

type registration struct {
	ctor Constructor
	cfg  BackendConfig
}

// Registry maps provider ids to family constructors. Registration happens at
// start-up; lookups are safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	order      []string
	providers  map[string]registration
	rules      []Rule
	fallback   string
	thresholds SizeThresholds
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRules replaces the selection rules.
func WithRules(rules []Rule) RegistryOption {
	return func(r *Registry) {
		r.rules = make([]Rule, len(rules))
		for i, rule := range rules {
			rule.Provider = normalizeID(rule.Provider)
			r.rules[i] = rule
		}
	}
}

// WithFallback sets the provider chosen when no rule matches.
func WithFallback(provider string) RegistryOption {
	return func(r *Registry) { r.fallback = normalizeID(provider) }
}

// WithSizeThresholds sets the transaction size boundaries.
func WithSizeThresholds(t SizeThresholds) RegistryOption {
	return func(r *Registry) { r.thresholds = t }
}

// NewRegistry creates an empty registry with the default selection rules.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		providers:  make(map[string]registration),
		rules:      DefaultRules(),
		fallback:   ProviderPayPal,
		thresholds: DefaultSizeThresholds(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a provider. Registering the same id twice is an error.
func (r *Registry) Register(id string, ctor Constructor, cfg BackendConfig) error {
	id = normalizeID(id)
	if id == "" {
		return fmt.Errorf("provider id cannot be empty")
	}
	if ctor == nil {
		return fmt.Errorf("provider %q: constructor cannot be nil", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[id]; exists {
		return fmt.Errorf("provider %q already registered", id)
	}
	r.providers[id] = registration{ctor: ctor, cfg: cfg}
	r.order = append(r.order, id)
	return nil
}

// CreateFamily builds a complete family for the provider id.
func (r *Registry) CreateFamily(id string) (*Family, error) {
	id = normalizeID(id)

	r.mu.RLock()
	reg, ok := r.providers[id]
	r.mu.RUnlock()
	if !ok {
		return nil, &order.UnknownProviderError{Provider: id}
	}

	parts, err := reg.ctor(reg.cfg)
	if err != nil {
		return nil, fmt.Errorf("construct provider %q: %w", id, err)
	}
	if parts.Processor == nil || parts.Refunds == nil || parts.Webhooks == nil {
		return nil, fmt.Errorf("provider %q constructor returned an incomplete family", id)
	}
	for capability, got := range map[string]string{
		"processor":         parts.Processor.Provider(),
		"refund handler":    parts.Refunds.Provider(),
		"webhook validator": parts.Webhooks.Provider(),
	} {
		if got != id {
			return nil, &MismatchedFamilyError{Provider: id, Capability: capability, Got: got}
		}
	}

	display := parts.DisplayName
	if display == "" {
		display = id
	}
	return &Family{
		provider:    id,
		displayName: display,
		processor:   parts.Processor,
		refunds:     parts.Refunds,
		webhooks:    parts.Webhooks,
	}, nil
}

// ListProviders returns registered ids in registration order.
func (r *Registry) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Fallback returns the provider chosen when no selection rule matches.
func (r *Registry) Fallback() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback
}

// Has reports whether the provider id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.providers[normalizeID(id)]
	return ok
}

// SelectProvider evaluates the rules in order and returns the first match
// that is registered, then the fallback, then the first registered provider.
// It returns "" only when nothing is registered.
func (r *Registry) SelectProvider(c Criteria) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rule := range r.rules {
		if !rule.Matches(c) {
			continue
		}
		if _, ok := r.providers[rule.Provider]; ok {
			return rule.Provider
		}
	}
	if _, ok := r.providers[r.fallback]; ok {
		return r.fallback
	}
	if len(r.order) > 0 {
		return r.order[0]
	}
	return ""
}

// CriteriaFor derives selection criteria from a shipping country and subtotal
// using the registry's size thresholds.
func (r *Registry) CriteriaFor(country string, subtotal decimal.Decimal) Criteria {
	r.mu.RLock()
	t := r.thresholds
	r.mu.RUnlock()

	return Criteria{
		Region:          RegionForCountry(country),
		TransactionSize: t.Classify(subtotal),
	}
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
