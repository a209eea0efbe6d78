package chathub

// Client is one live room connection, whatever carries it. The Hub tracks
// clients per room so they can be shut down together.
type Client interface {
	// GetUserID returns the user on the other end of the connection.
	GetUserID() string
	// GetRoomCode returns the room the client is attached to.
	GetRoomCode() string

	// Run starts the client's pumps. It returns immediately.
	Run()
	// Close releases the client's subscriptions and closes its transport.
	// It is safe to call more than once.
	Close()
	// Done is closed when the client has fully stopped.
	Done() <-chan struct{}
}
