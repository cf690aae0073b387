package model

// OwnerID is the identifier type a cart or preference row is keyed by: the
// anonymous id (string, carried in the session credential) or the account id.
type OwnerID interface {
	~string | ~uint64
}

// Table names for the two parallel identity stores
const (
	AnonCartTable       = "anon_cart_items"
	UserCartTable       = "user_cart_items"
	AnonPreferenceTable = "anon_preferences"
	UserPreferenceTable = "user_preferences"
)
