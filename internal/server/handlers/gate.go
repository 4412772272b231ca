package handlers

// SessionGate records activity on sessions for idle-TTL accounting and
// serializes mutating commands against them. Satisfied by session.Manager.
type SessionGate interface {
	// Touch marks the session as recently used.
	Touch(id string)
	// Lock takes the session's mutation lock. The returned function
	// releases it.
	Lock(id string) func()
}

// noopGate stands in when no gate is wired (tests, library use).
type noopGate struct{}

func (noopGate) Touch(string)       {}
func (noopGate) Lock(string) func() { return func() {} }

func gateOrNoop(g SessionGate) SessionGate {
	if g == nil {
		return noopGate{}
	}
	return g
}

// touchSession records activity when a session is involved at all.
func touchSession(g SessionGate, id string) {
	if id != "" {
		g.Touch(id)
	}
}

// lockSession touches and then locks a session for a mutating command.
// Session-less commands need no serialization and get a no-op release.
func lockSession(g SessionGate, id string) func() {
	if id == "" {
		return func() {}
	}
	g.Touch(id)
	return g.Lock(id)
}
