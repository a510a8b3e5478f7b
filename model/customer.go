package model

// CustomerTier weights order priority and value.
type CustomerTier string

const (
	TierStandard  CustomerTier = "standard"
	TierPreferred CustomerTier = "preferred"
	TierKey       CustomerTier = "key"
)

// Customer is a roster entry orders are generated for.
type Customer struct {
	ID   string       `json:"id"`
	Name string       `json:"name"`
	Tier CustomerTier `json:"tier"`
}
