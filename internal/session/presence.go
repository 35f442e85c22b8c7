package session

// ConnectedClient is one live, tracked participant of the session topic.
type ConnectedClient struct {
	ClientID string `json:"clientId"`
	Role     string `json:"role"`
}

// Registry projects the transport's presence state into the set of
// currently-connected clients. The only writer is the owning session's
// sync handler; every sync replaces the whole set, never merges into it.
type Registry struct {
	view *watchable[[]ConnectedClient]
}

// NewRegistry builds an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{view: newWatchable([]ConnectedClient(nil))}
}

// Clients returns the current connected set.
func (r *Registry) Clients() []ConnectedClient {
	return r.view.get()
}

// Watch delivers the current set immediately, then every replacement.
func (r *Registry) Watch() (<-chan []ConnectedClient, func()) {
	return r.view.watch()
}

func (r *Registry) replace(clients []ConnectedClient) {
	r.view.set(clients)
}
