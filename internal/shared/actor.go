package shared

// Actor is the principal as seen by domain services: identity plus the
// already-resolved platform privilege flag. Handlers resolve it once per
// request so services stay free of authorization lookups.
type Actor struct {
	ID           int64
	IsSuperAdmin bool
}
