package fanout

// Socket is a non-blocking byte stream. Read and Write return
// [pkg.ErrWouldBlock] when no data or buffer space is available, and Read
// returns io.EOF on an orderly close by the peer.
type Socket interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Listener yields non-blocking client sockets.
type Listener interface {
	// Accept returns the next pending connection and its display address.
	// It returns [pkg.ErrWouldBlock] when none is pending.
	Accept() (Socket, string, error)

	// Addr returns the bound local address.
	Addr() string

	// Close stops listening.
	Close() error
}
