package models

// ProviderSummary describes one registered payment provider.
type ProviderSummary struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Fallback    bool   `json:"fallback,omitempty"`
}

// ProviderListResponse is returned by GET /api/v1/providers.
type ProviderListResponse struct {
	Providers []ProviderSummary `json:"providers"`
}

// ProviderSelectionResponse is returned by GET /api/v1/providers/select.
type ProviderSelectionResponse struct {
	Provider        string `json:"provider"`
	Country         string `json:"country"`
	Region          string `json:"region,omitempty"`
	TransactionSize string `json:"transaction_size"`
	Subtotal        string `json:"subtotal"`
}

// WebhookResponse acknowledges an accepted provider webhook.
type WebhookResponse struct {
	Provider string `json:"provider"`
	Accepted bool   `json:"accepted"`
	Bytes    int    `json:"bytes"`
}
