package profile

// Profile holds the operator-supplied facts about the store that shape
// every system prompt.
type Profile struct {
	Name     string   `json:"name,omitempty"`
	Niche    string   `json:"niche,omitempty"`
	Platform string   `json:"platform,omitempty"`
	Currency string   `json:"currency,omitempty"`
	Audience string   `json:"audience,omitempty"`
	Shipping string   `json:"shipping,omitempty"`
	Returns  string   `json:"returns,omitempty"`
	Notes    []string `json:"notes,omitempty"`
}

// Storage keys. Notes is stored as a JSON array.
const (
	KeyName     = "name"
	KeyNiche    = "niche"
	KeyPlatform = "platform"
	KeyCurrency = "currency"
	KeyAudience = "audience"
	KeyShipping = "shipping"
	KeyReturns  = "returns"
	KeyNotes    = "notes"
)

// Keys lists the settable profile keys in summary order.
var Keys = []string{KeyName, KeyNiche, KeyPlatform, KeyCurrency, KeyAudience, KeyShipping, KeyReturns, KeyNotes}

var labels = map[string]string{
	KeyName:     "שם החנות",
	KeyNiche:    "תחום",
	KeyPlatform: "פלטפורמה",
	KeyCurrency: "מטבע",
	KeyAudience: "קהל יעד",
	KeyShipping: "משלוחים",
	KeyReturns:  "החזרות",
	KeyNotes:    "הערות",
}
