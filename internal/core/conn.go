package core

// Conn is the coordinator's view of a single transport connection. The
// transport layer owns the connection lifecycle; the coordinator only holds
// the id and pushes events through Send.
type Conn interface {
	// ID returns the unique id of this connection.
	ID() string
	// Send delivers a named event with a JSON-serializable payload.
	Send(event string, payload any) error
}

// Identity is the result of a successful handshake token verification.
type Identity struct {
	UserID string
	Name   string
}

// Verifier validates handshake credential tokens.
type Verifier interface {
	// Verify returns the identity bound to the token, or false when the
	// token is absent, expired or otherwise invalid.
	Verify(token string) (Identity, bool)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(token string) (Identity, bool)

// Verify implements Verifier.
func (f VerifierFunc) Verify(token string) (Identity, bool) { return f(token) }

// Session is the per-connection state established at handshake time.
// UserID is empty for anonymous connections.
type Session struct {
	Conn   Conn
	UserID string
	Name   string
}

// Authenticated reports whether a user identity is bound to the session.
func (s *Session) Authenticated() bool { return s.UserID != "" }
