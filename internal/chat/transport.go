package chat

// Transport is the message-discrete channel a session talks through.
// Framing (delimiting discrete messages) is the transport's concern;
// the session core only sees whole strings.
type Transport interface {
	// Send writes one outbound message.
	Send(message string) error
	// Receive blocks until the next inbound message. It returns io.EOF when
	// the peer closed the connection and any other error on failure.
	Receive() (string, error)
	// Close releases the connection. It must unblock a pending Receive.
	Close() error
}
