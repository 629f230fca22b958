package broadcast

import (
	"context"

	"go.uber.org/zap"

	"github.com/blakbro2k/YipeeWebServer-sub000/internal/hub"
)

type Msg interface{ isBroadcastMsg() }

// Join associates a connection with a game. A connection follows one game at
// a time; joining another game moves it.
type Join struct {
	ConnID string
	GameID string
	Outbox chan hub.TickNotice
}

type Leave struct{ ConnID string }

// Forget is sent once the transport has closed the connection. Only then may
// the connection id join again after being dropped.
type Forget struct{ ConnID string }

type Publish struct{ Notices []hub.TickNotice }

// GetMembers reports how many connections follow GameID.
type GetMembers struct {
	GameID string
	Reply  chan int
}

type Shutdown struct{}

func (Join) isBroadcastMsg()       {}
func (Leave) isBroadcastMsg()      {}
func (Forget) isBroadcastMsg()     {}
func (Publish) isBroadcastMsg()    {}
func (GetMembers) isBroadcastMsg() {}
func (Shutdown) isBroadcastMsg()   {}

type member struct {
	gameID string
	outbox chan hub.TickNotice
}

// Broadcaster fans tick notices out to the connections associated with each
// game. All bookkeeping happens on its own goroutine.
type Broadcaster struct {
	inbox   chan Msg
	members map[string]member
	games   map[string]map[string]struct{}
	dropped map[string]struct{}
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(parent context.Context, log *zap.Logger) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	b := &Broadcaster{
		inbox:   make(chan Msg, 256),
		members: make(map[string]member),
		games:   make(map[string]map[string]struct{}),
		dropped: make(map[string]struct{}),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	go b.loop()
	return b
}

func (b *Broadcaster) Inbox() chan<- Msg { return b.inbox }

func (b *Broadcaster) send(m Msg) {
	select {
	case b.inbox <- m:
	case <-b.ctx.Done():
	}
}

func (b *Broadcaster) Join(connID, gameID string, outbox chan hub.TickNotice) {
	b.send(Join{ConnID: connID, GameID: gameID, Outbox: outbox})
}

func (b *Broadcaster) Leave(connID string)  { b.send(Leave{ConnID: connID}) }
func (b *Broadcaster) Forget(connID string) { b.send(Forget{ConnID: connID}) }

// Listener adapts the broadcaster to the registry clock. It never blocks the
// scheduler: a full inbox drops the batch.
func (b *Broadcaster) Listener() hub.TickListener {
	return func(notices []hub.TickNotice) {
		select {
		case b.inbox <- Publish{Notices: notices}:
		case <-b.ctx.Done():
		default:
			b.log.Warn("broadcast inbox full, dropping tick batch", zap.Int("games", len(notices)))
		}
	}
}

// Members is mostly for tests and health output.
func (b *Broadcaster) Members(gameID string) int {
	reply := make(chan int, 1)
	b.send(GetMembers{GameID: gameID, Reply: reply})
	select {
	case n := <-reply:
		return n
	case <-b.ctx.Done():
		return 0
	}
}

func (b *Broadcaster) Shutdown() { b.send(Shutdown{}) }

func (b *Broadcaster) loop() {
	for {
		select {
		case <-b.ctx.Done():
			b.shutdown()
			return

		case m := <-b.inbox:
			switch msg := m.(type) {
			case Join:
				// A dropped connection's outbox is already closed.
				if _, gone := b.dropped[msg.ConnID]; gone {
					continue
				}
				b.remove(msg.ConnID)
				b.members[msg.ConnID] = member{gameID: msg.GameID, outbox: msg.Outbox}
				set := b.games[msg.GameID]
				if set == nil {
					set = make(map[string]struct{})
					b.games[msg.GameID] = set
				}
				set[msg.ConnID] = struct{}{}

			case Leave:
				b.remove(msg.ConnID)

			case Forget:
				b.remove(msg.ConnID)
				delete(b.dropped, msg.ConnID)

			case Publish:
				for _, n := range msg.Notices {
					b.publish(n)
				}

			case GetMembers:
				msg.Reply <- len(b.games[msg.GameID])

			case Shutdown:
				b.shutdown()
				return
			}
		}
	}
}

func (b *Broadcaster) remove(connID string) {
	m, ok := b.members[connID]
	if !ok {
		return
	}
	delete(b.members, connID)
	if set := b.games[m.gameID]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(b.games, m.gameID)
		}
	}
}

func (b *Broadcaster) publish(n hub.TickNotice) {
	for connID := range b.games[n.GameID] {
		m := b.members[connID]
		select {
		case m.outbox <- n:
		default:
			// Slow consumer: close its outbox so the transport drops it.
			b.log.Warn("dropping slow connection", zap.String("conn", connID), zap.String("game_id", n.GameID))
			close(m.outbox)
			b.remove(connID)
			b.dropped[connID] = struct{}{}
		}
	}
}

func (b *Broadcaster) shutdown() {
	for connID, m := range b.members {
		close(m.outbox)
		delete(b.members, connID)
	}
	clear(b.games)
	clear(b.dropped)
	b.cancel()
}
