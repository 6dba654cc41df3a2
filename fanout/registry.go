package fanout

import "github.com/ardnew/usb2sock/pkg"

// DefaultCapacity is the default maximum number of registered clients.
const DefaultCapacity = 1024

// Client is one connected consumer.
type Client struct {
	Socket Socket // Non-blocking connection, owned by the registry
	Addr   string // Peer address for display
}

// Registry is an insertion-ordered, bounded list of clients. Indices are
// contiguous from 0. Removing a client shifts every later client down by
// one, so an iteration that removes index i must examine i again next.
type Registry struct {
	clients []Client
	cap     int
}

// NewRegistry returns an empty registry holding at most capacity clients.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{cap: capacity}
}

// Add appends c and returns its index. A full registry returns
// [pkg.ErrRegistryFull] and leaves c's socket open for the caller to close.
func (r *Registry) Add(c Client) (int, error) {
	if len(r.clients) >= r.cap {
		return -1, pkg.ErrRegistryFull
	}
	r.clients = append(r.clients, c)
	return len(r.clients) - 1, nil
}

// Remove closes the client at index i and shifts later clients down.
func (r *Registry) Remove(i int) error {
	err := r.clients[i].Socket.Close()
	copy(r.clients[i:], r.clients[i+1:])
	r.clients[len(r.clients)-1] = Client{}
	r.clients = r.clients[:len(r.clients)-1]
	return err
}

// At returns the client at index i.
func (r *Registry) At(i int) Client {
	return r.clients[i]
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	return len(r.clients)
}

// Cap returns the registry capacity.
func (r *Registry) Cap() int {
	return r.cap
}

// CloseAll closes and removes every client. It returns the number closed.
func (r *Registry) CloseAll() int {
	n := len(r.clients)
	for i := range r.clients {
		if err := r.clients[i].Socket.Close(); err != nil {
			pkg.LogDebug(pkg.ComponentFanout, "client close failed",
				"client", r.clients[i].Addr, "error", err)
		}
		r.clients[i] = Client{}
	}
	r.clients = r.clients[:0]
	return n
}
