// Package coord owns all shared room and connection state. A single
// goroutine consumes a command channel, so every command runs to
// completion before the next one starts; nothing outside the loop ever
// reads or mutates the registry or the rooms.
package coord

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"lobbyd/internal/domain"
)

// Handle delivers one outbound text payload to exactly one identity.
// Delivery is fire-and-forget: a failed send is dropped, never retried.
type Handle interface {
	TrySend([]byte) error
}

// skipNone is the no-op skip marker for server-originated broadcasts;
// it matches no registered identity.
const skipNone = domain.UserID("")

// ConfirmNotice is the reserved control line broadcast to a room when a
// ready round completes.
const ConfirmNotice = "/confirm"

type Options struct {
	// DefaultCapacity is the ready-check threshold assigned to newly
	// created rooms. Zero disables the barrier.
	DefaultCapacity int
	// StrictJoin rejects joins to unknown rooms and keeps the member in
	// its previous room instead of orphaning it.
	StrictJoin bool
	// StrictCreate rejects creation under an already-used room id
	// instead of silently overwriting it.
	StrictCreate bool
	// QueueSize bounds the command inbox.
	QueueSize int
}

type Coordinator struct {
	opts Options

	cmds chan command
	done chan struct{}

	// Owned exclusively by the Run loop.
	sessions map[domain.UserID]Handle
	rooms    map[domain.RoomID]*room

	// Atomic so the HTTP counter route can read it without a command.
	visitors atomic.Int64
}

func New(opts Options) *Coordinator {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	c := &Coordinator{
		opts:     opts,
		cmds:     make(chan command, opts.QueueSize),
		done:     make(chan struct{}),
		sessions: make(map[domain.UserID]Handle),
		rooms:    make(map[domain.RoomID]*room),
	}
	c.rooms[LobbyID] = newRoom(LobbyID, domain.MemberInfo{Username: "lobby"}, 0)
	return c
}

// Run processes commands in arrival order until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.done)
	log.Info().Str("module", "coord").Str("lobby", string(LobbyID)).Msg("coordinator started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "coord").Msg("coordinator stopped")
			return
		case cmd := <-c.cmds:
			c.dispatch(cmd)
		}
	}
}

func (c *Coordinator) dispatch(cmd command) {
	switch m := cmd.(type) {
	case connectCmd:
		c.handleConnect(m)
	case disconnectCmd:
		c.handleDisconnect(m)
	case createCmd:
		c.handleCreate(m)
	case joinCmd:
		c.handleJoin(m)
	case broadcastCmd:
		c.handleBroadcast(m)
	case listCmd:
		m.reply <- c.listRooms()
	case snapshotCmd:
		m.reply <- c.snapshot()
	case ackCmd:
		c.handleAck(m)
	case ackCancelCmd:
		c.handleAckCancel(m)
	case setCapacityCmd:
		c.handleSetCapacity(m)
	}
}

func (c *Coordinator) submit(cmd command) {
	select {
	case c.cmds <- cmd:
	case <-c.done:
	}
}

// Connect registers the handle, lands the identity in the lobby and
// returns the room digest for the connecting client. The caller blocks
// until the coordinator has processed the registration.
func (c *Coordinator) Connect(id domain.UserID, name string, h Handle) []byte {
	reply := make(chan []byte, 1)
	c.submit(connectCmd{id: id, name: name, handle: h, reply: reply})
	select {
	case b := <-reply:
		return b
	case <-c.done:
		return nil
	}
}

func (c *Coordinator) Disconnect(id domain.UserID) {
	c.submit(disconnectCmd{id: id})
}

func (c *Coordinator) CreateRoom(id domain.UserID, name string, roomID domain.RoomID) {
	c.submit(createCmd{id: id, name: name, roomID: roomID})
}

func (c *Coordinator) JoinRoom(id domain.UserID, name string, roomID domain.RoomID) {
	c.submit(joinCmd{id: id, name: name, roomID: roomID})
}

func (c *Coordinator) Broadcast(id domain.UserID, name string, roomID domain.RoomID, text string) {
	c.submit(broadcastCmd{id: id, name: name, roomID: roomID, text: text})
}

// ListRooms returns one summary line per room followed by one line per
// member. The caller blocks until the reply arrives.
func (c *Coordinator) ListRooms() []string {
	reply := make(chan []string, 1)
	c.submit(listCmd{reply: reply})
	select {
	case lines := <-reply:
		return lines
	case <-c.done:
		return nil
	}
}

// Snapshot returns the digest of every room, as served on /rooms.
func (c *Coordinator) Snapshot() []RoomDigest {
	reply := make(chan []RoomDigest, 1)
	c.submit(snapshotCmd{reply: reply})
	select {
	case snap := <-reply:
		return snap
	case <-c.done:
		return nil
	}
}

func (c *Coordinator) Ack(id domain.UserID, name string, roomID domain.RoomID) {
	c.submit(ackCmd{id: id, name: name, roomID: roomID})
}

func (c *Coordinator) AckCancel(id domain.UserID, name string, roomID domain.RoomID) {
	c.submit(ackCancelCmd{id: id, name: name, roomID: roomID})
}

func (c *Coordinator) SetCapacity(id domain.UserID, name string, roomID domain.RoomID, n int) {
	c.submit(setCapacityCmd{id: id, name: name, roomID: roomID, n: n})
}

// Visitors reports the total number of connects since start.
func (c *Coordinator) Visitors() int64 {
	return c.visitors.Load()
}

func (c *Coordinator) handleConnect(m connectCmd) {
	if _, ok := c.sessions[m.id]; ok {
		// Last writer wins; the stale handle becomes unreachable and
		// any in-flight delivery to it is dropped by the transport.
		log.Warn().Str("module", "coord").Str("user", string(m.id)).Msg("duplicate connect, replacing handle")
	}
	c.sessions[m.id] = m.handle

	c.sendToRoom(LobbyID, fmt.Sprintf("%s joined", displayName(m.id, m.name)), skipNone)

	c.rooms[LobbyID].add(m.id, m.name)

	count := c.visitors.Add(1)
	c.sendToRoom(LobbyID, fmt.Sprintf("Total visitors %d", count), skipNone)

	log.Info().Str("module", "coord").Str("user", string(m.id)).Int64("visitors", count).Msg("connected")
	m.reply <- c.digestJSON()
}

func (c *Coordinator) handleDisconnect(m disconnectCmd) {
	if _, ok := c.sessions[m.id]; !ok {
		return
	}
	delete(c.sessions, m.id)
	c.removeFromAllRooms(m.id)
	log.Info().Str("module", "coord").Str("user", string(m.id)).Msg("disconnected")
}

func (c *Coordinator) handleCreate(m createCmd) {
	if _, exists := c.rooms[m.roomID]; exists && c.opts.StrictCreate {
		log.Warn().Str("module", "coord").Str("room", string(m.roomID)).Msg("create rejected, room id in use")
		c.sendTo(m.id, fmt.Sprintf("room already exists: %s", m.roomID))
		return
	}
	c.removeFromAllRooms(m.id)

	r := newRoom(m.roomID, domain.MemberInfo{UserID: m.id, Username: m.name}, c.opts.DefaultCapacity)
	r.add(m.id, m.name)
	c.rooms[m.roomID] = r
	log.Info().Str("module", "coord").Str("room", string(m.roomID)).Str("owner", string(m.id)).Msg("room created")
}

func (c *Coordinator) handleJoin(m joinCmd) {
	target, exists := c.rooms[m.roomID]
	if !exists && c.opts.StrictJoin {
		log.Warn().Str("module", "coord").Str("room", string(m.roomID)).Msg("join rejected, no such room")
		c.sendTo(m.id, fmt.Sprintf("room does not exist: %s", m.roomID))
		return
	}

	c.removeFromAllRooms(m.id)

	if !exists {
		// The member already left its old room and the target never
		// existed, so it is now roomless until its next join.
		log.Warn().Str("module", "coord").Str("user", string(m.id)).Str("room", string(m.roomID)).Msg("joined nonexistent room, member is roomless")
		return
	}

	target.add(m.id, m.name)
	c.sendToRoom(m.roomID, fmt.Sprintf("%s joined", displayName(m.id, m.name)), skipNone)
	log.Info().Str("module", "coord").Str("user", string(m.id)).Str("room", string(m.roomID)).Msg("joined room")
}

func (c *Coordinator) handleBroadcast(m broadcastCmd) {
	if _, ok := c.rooms[m.roomID]; !ok {
		log.Debug().Str("module", "coord").Str("room", string(m.roomID)).Msg("broadcast to unknown room dropped")
		return
	}
	c.sendToRoom(m.roomID, m.text, m.id)
}

func (c *Coordinator) listRooms() []string {
	ids := lo.Keys(c.rooms)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var lines []string
	for _, id := range ids {
		r := c.rooms[id]
		lines = append(lines, fmt.Sprintf("%s by %s", id, r.owner.Username))
		for i, mi := range r.memberInfos() {
			lines = append(lines, fmt.Sprintf("%d: %s, %s", i, mi.UserID, mi.Username))
		}
	}
	return lines
}

func (c *Coordinator) handleAck(m ackCmd) {
	r, ok := c.rooms[m.roomID]
	if !ok {
		log.Warn().Str("module", "coord").Str("room", string(m.roomID)).Msg("ack for unknown room")
		return
	}
	if r.capacity <= 0 {
		log.Debug().Str("module", "coord").Str("room", string(m.roomID)).Msg("ack ignored, barrier disabled")
		return
	}
	if !r.isMember(m.id) {
		log.Warn().Str("module", "coord").Str("user", string(m.id)).Str("room", string(m.roomID)).Msg("ack from non-member ignored")
		return
	}

	added, complete := r.ack(m.id)
	if !added {
		log.Info().Str("module", "coord").Str("user", string(m.id)).Str("room", string(m.roomID)).Msg("duplicate ack in round")
		return
	}
	log.Info().Str("module", "coord").Str("user", string(m.id)).Str("room", string(m.roomID)).Int("acks", len(r.ackSet)).Int("capacity", r.capacity).Msg("ack")

	if complete {
		// Round completes atomically: everyone hears the confirmation,
		// then the next round opens.
		c.sendToRoom(m.roomID, ConfirmNotice, skipNone)
		r.resetRound()
		log.Info().Str("module", "coord").Str("room", string(m.roomID)).Msg("ready round complete")
	}
}

func (c *Coordinator) handleAckCancel(m ackCancelCmd) {
	r, ok := c.rooms[m.roomID]
	if !ok {
		log.Warn().Str("module", "coord").Str("room", string(m.roomID)).Msg("ack cancel for unknown room")
		return
	}
	if !r.cancelAck(m.id) {
		log.Debug().Str("module", "coord").Str("user", string(m.id)).Str("room", string(m.roomID)).Msg("ack cancel without ack")
		return
	}
	log.Info().Str("module", "coord").Str("user", string(m.id)).Str("room", string(m.roomID)).Msg("ack cancelled")
}

func (c *Coordinator) handleSetCapacity(m setCapacityCmd) {
	r, ok := c.rooms[m.roomID]
	if !ok {
		log.Warn().Str("module", "coord").Str("room", string(m.roomID)).Msg("set capacity for unknown room")
		return
	}
	if m.n < 0 {
		c.sendTo(m.id, "capacity must be non-negative")
		return
	}
	if m.n > len(r.members) {
		log.Warn().Str("module", "coord").Str("room", string(m.roomID)).Int("capacity", m.n).Int("members", len(r.members)).Msg("capacity above membership, round cannot complete yet")
	}
	r.capacity = m.n
	log.Info().Str("module", "coord").Str("room", string(m.roomID)).Int("capacity", m.n).Msg("capacity set")
}

// removeFromAllRooms is defensive on purpose: membership is supposed to
// be exclusive, but iterating every room repairs any divergence.
func (c *Coordinator) removeFromAllRooms(id domain.UserID) {
	for roomID, r := range c.rooms {
		if r.remove(id) {
			log.Debug().Str("module", "coord").Str("user", string(id)).Str("room", string(roomID)).Msg("removed from room")
		}
	}
}

func (c *Coordinator) sendToRoom(roomID domain.RoomID, text string, skip domain.UserID) {
	r, ok := c.rooms[roomID]
	if !ok {
		return
	}
	for id := range r.members {
		if id == skip {
			continue
		}
		c.sendTo(id, text)
	}
}

func (c *Coordinator) sendTo(id domain.UserID, text string) {
	h, ok := c.sessions[id]
	if !ok {
		return
	}
	if err := h.TrySend([]byte(text)); err != nil {
		log.Debug().Err(err).Str("module", "coord").Str("user", string(id)).Msg("delivery dropped")
	}
}

func displayName(id domain.UserID, name string) string {
	if name == "" {
		return string(id)
	}
	return name
}
