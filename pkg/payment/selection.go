package payment

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Built-in provider ids.
const (
	ProviderStripe = "stripe"
	ProviderPayPal = "paypal"
	ProviderSquare = "square"
)

// Size classifies a transaction by value.
type Size string

const (
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

// RegionEU is the region reported for EU member states.
const RegionEU = "EU"

// Criteria drives provider selection.
type Criteria struct {
	Region          string `json:"region,omitempty"`
	TransactionSize Size   `json:"transaction_size,omitempty"`
}

// Rule selects Provider when every non-empty field equals the criteria.
type Rule struct {
	Region          string `json:"region,omitempty" mapstructure:"region"`
	TransactionSize Size   `json:"transaction_size,omitempty" mapstructure:"transaction_size"`
	Provider        string `json:"provider" mapstructure:"provider"`
}

// Matches reports whether the rule applies to c.
func (r Rule) Matches(c Criteria) bool {
	if r.Region != "" && !strings.EqualFold(r.Region, c.Region) {
		return false
	}
	if r.TransactionSize != "" && r.TransactionSize != c.TransactionSize {
		return false
	}
	return true
}

// DefaultRules returns the built-in rules: small US transactions go to
// square, EU goes to stripe.
func DefaultRules() []Rule {
	return []Rule{
		{Region: "US", TransactionSize: SizeSmall, Provider: ProviderSquare},
		{Region: RegionEU, Provider: ProviderStripe},
	}
}

// SizeThresholds are the exclusive upper bounds of small and medium.
type SizeThresholds struct {
	Small  decimal.Decimal
	Medium decimal.Decimal
}

// DefaultSizeThresholds returns small < 100, medium < 1000.
func DefaultSizeThresholds() SizeThresholds {
	return SizeThresholds{
		Small:  decimal.NewFromInt(100),
		Medium: decimal.NewFromInt(1000),
	}
}

// Classify maps an amount to a Size.
func (t SizeThresholds) Classify(amount decimal.Decimal) Size {
	switch {
	case amount.LessThan(t.Small):
		return SizeSmall
	case amount.LessThan(t.Medium):
		return SizeMedium
	default:
		return SizeLarge
	}
}

var euMembers = map[string]struct{}{
	"AT": {}, "BE": {}, "BG": {}, "HR": {}, "CY": {}, "CZ": {}, "DK": {},
	"EE": {}, "FI": {}, "FR": {}, "DE": {}, "GR": {}, "HU": {}, "IE": {},
	"IT": {}, "LV": {}, "LT": {}, "LU": {}, "MT": {}, "NL": {}, "PL": {},
	"PT": {}, "RO": {}, "SK": {}, "SI": {}, "ES": {}, "SE": {},
}

// RegionForCountry maps an ISO country code to a selection region. EU
// members map to "EU"; every other code maps to itself, upper-cased.
func RegionForCountry(country string) string {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == RegionEU {
		return RegionEU
	}
	if _, ok := euMembers[country]; ok {
		return RegionEU
	}
	return country
}
