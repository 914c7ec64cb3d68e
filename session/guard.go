package session

import "context"

// Guard gates navigation into authenticated commands. It only reads the store
// and decodes tokens locally.
type Guard struct {
	store Store
}

// NewGuard creates a Guard over store.
func NewGuard(store Store) *Guard {
	return &Guard{store: store}
}

// CanEnter reports whether an unexpired access token is stored, or a refresh
// token is stored. The latter allows entry provisionally; the transport
// renews on the first request.
func (g *Guard) CanEnter(ctx context.Context) bool {
	p, err := g.store.Load(ctx)
	if err != nil {
		return false
	}
	if p.Access != "" && !IsExpired(p.Access) {
		return true
	}
	return p.Refresh != ""
}
