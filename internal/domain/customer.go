package domain

// CustomerIdentity is derived from a raw transport address on every message.
type CustomerIdentity struct {
	// CanonicalID is the stable per-sender key (device suffix removed).
	CanonicalID string
	// DisplayPhone is digits only, country-code prefixed when it looked local.
	DisplayPhone string
}

// HasPhone reports whether a phone number could be derived.
func (c CustomerIdentity) HasPhone() bool {
	return c.DisplayPhone != ""
}
