package conn

import "sync"

// Context is what the server remembers about one transport connection. It
// lives only as long as the connection and is never persisted.
type Context struct {
	ConnID    string
	ClientID  string
	SessionID string
	GameID    string
	PlayerID  string
}

// Identity is the sender information carried by a request.
type Identity struct {
	ClientID  string
	SessionID string
	PlayerID  string
}

// Resolver maps connection ids to contexts and session ids to the game they
// joined.
type Resolver struct {
	mu       sync.Mutex
	conns    map[string]*Context
	sessions map[string]string
}

func NewResolver() *Resolver {
	return &Resolver{
		conns:    make(map[string]*Context),
		sessions: make(map[string]string),
	}
}

// Resolve returns the context for connID, creating it on first use, and
// refreshes it from id. GameID follows the session binding and is empty when
// the session has not joined a game.
func (r *Resolver) Resolve(connID string, id Identity) Context {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		c = &Context{ConnID: connID}
		r.conns[connID] = c
	}
	c.ClientID = id.ClientID
	c.SessionID = id.SessionID
	if id.PlayerID != "" {
		c.PlayerID = id.PlayerID
	}
	c.GameID = r.sessions[id.SessionID]
	return *c
}

// Lookup returns the current context without refreshing it.
func (r *Resolver) Lookup(connID string) (Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return Context{}, false
	}
	return *c, true
}

func (r *Resolver) Bind(sessionID, gameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = gameID
	for _, c := range r.conns {
		if c.SessionID == sessionID {
			c.GameID = gameID
		}
	}
}

func (r *Resolver) Unbind(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	for _, c := range r.conns {
		if c.SessionID == sessionID {
			c.GameID = ""
		}
	}
}

func (r *Resolver) Close(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connID)
}

func (r *Resolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
