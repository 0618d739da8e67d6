// Package session owns one connection's heartbeat and command
// interpretation. It is the only component that talks to both the
// transport and the coordinator.
package session

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"lobbyd/internal/coord"
	"lobbyd/internal/domain"
)

type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

// Conn is the transport endpoint of one session. Owned by the adapter;
// the adapter must tolerate sends after Close as no-op failures.
type Conn interface {
	TrySend([]byte) error
	Ping() error
	Close()
}

// Commander is the coordinator surface a session needs. The concrete
// *coord.Coordinator satisfies it.
type Commander interface {
	Connect(id domain.UserID, name string, h coord.Handle) []byte
	Disconnect(id domain.UserID)
	CreateRoom(id domain.UserID, name string, roomID domain.RoomID)
	JoinRoom(id domain.UserID, name string, roomID domain.RoomID)
	Broadcast(id domain.UserID, name string, roomID domain.RoomID, text string)
	ListRooms() []string
	Ack(id domain.UserID, name string, roomID domain.RoomID)
	AckCancel(id domain.UserID, name string, roomID domain.RoomID)
	SetCapacity(id domain.UserID, name string, roomID domain.RoomID, n int)
}

type Session struct {
	user  *domain.User
	coord Commander
	conn  Conn

	pingPeriod time.Duration
	timeout    time.Duration

	// room is the session's own belief of membership; only touched from
	// the transport read loop.
	room domain.RoomID

	lastBeat atomic.Int64
	state    atomic.Int32
	stop     sync.Once
	done     chan struct{}
}

func New(id domain.UserID, commander Commander, conn Conn, pingPeriod, timeout time.Duration) *Session {
	s := &Session{
		user:       &domain.User{ID: id},
		coord:      commander,
		conn:       conn,
		pingPeriod: pingPeriod,
		timeout:    timeout,
		room:       coord.LobbyID,
		done:       make(chan struct{}),
	}
	s.lastBeat.Store(time.Now().UnixNano())
	return s
}

func (s *Session) State() State { return State(s.state.Load()) }

// Start registers with the coordinator and arms the heartbeat. The
// registration is awaited so no inbound command can overtake it.
func (s *Session) Start() {
	digest := s.coord.Connect(s.user.ID, s.user.Username, s.conn)
	if digest != nil {
		if err := s.conn.TrySend(digest); err != nil {
			log.Debug().Err(err).Str("module", "session").Str("user", string(s.user.ID)).Msg("digest dropped")
		}
	}
	s.state.Store(int32(StateActive))
	go s.heartbeat()
	log.Info().Str("module", "session").Str("user", string(s.user.ID)).Msg("session active")
}

// Touch refreshes the liveness timestamp. Called for every inbound
// ping/pong control frame regardless of command-parsing state.
func (s *Session) Touch() {
	s.lastBeat.Store(time.Now().UnixNano())
}

// Shutdown is the single exit path: transport close, protocol error and
// heartbeat timeout all funnel here. Idempotent against duplicate close
// signals.
func (s *Session) Shutdown() {
	s.stop.Do(func() {
		s.state.Store(int32(StateClosing))
		close(s.done)
		s.coord.Disconnect(s.user.ID)
		s.conn.Close()
		s.state.Store(int32(StateClosed))
		log.Info().Str("module", "session").Str("user", string(s.user.ID)).Msg("session closed")
	})
}

func (s *Session) heartbeat() {
	ticker := time.NewTicker(s.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			last := time.Unix(0, s.lastBeat.Load())
			if time.Since(last) > s.timeout {
				log.Warn().Str("module", "session").Str("user", string(s.user.ID)).Msg("heartbeat timed out, disconnecting")
				s.Shutdown()
				return
			}
			if err := s.conn.Ping(); err != nil {
				log.Debug().Err(err).Str("module", "session").Str("user", string(s.user.ID)).Msg("ping failed")
				s.Shutdown()
				return
			}
		}
	}
}

// HandleText interprets one inbound text line from the transport.
func (s *Session) HandleText(line string) {
	if s.State() != StateActive {
		return
	}

	line = strings.TrimSpace(line)
	cmd, ok := parseLine(line)
	if !ok {
		s.chat(line)
		return
	}

	switch cmd.name {
	case "/list":
		// Awaiting the reply keeps the listing consistent with commands
		// this session issued just before it; the read loop processes
		// nothing else meanwhile.
		for _, room := range s.coord.ListRooms() {
			s.reply(room)
		}
	case "/create":
		newRoom := domain.RoomID(uuid.NewString())
		s.coord.CreateRoom(s.user.ID, s.user.Username, newRoom)
		s.room = newRoom
		s.reply(fmt.Sprintf("created room successfully: %s", newRoom))
	case "/join":
		if cmd.arg == "" {
			s.reply("room name is required")
			return
		}
		// Optimistic: the coordinator may leave us roomless when the
		// target does not exist.
		s.room = domain.RoomID(cmd.arg)
		s.coord.JoinRoom(s.user.ID, s.user.Username, s.room)
		s.reply("joined")
	case "/name":
		if cmd.arg == "" {
			s.reply("name is required")
			return
		}
		if err := s.user.SetUsername(cmd.arg); err != nil {
			s.reply(err.Error())
		}
	case "/ack":
		s.coord.Ack(s.user.ID, s.user.Username, s.room)
	case "/rm_ack":
		s.coord.AckCancel(s.user.ID, s.user.Username, s.room)
	case "/set_num":
		n, err := strconv.Atoi(cmd.arg)
		if err != nil {
			s.reply(fmt.Sprintf("invalid capacity: %q", cmd.arg))
			return
		}
		s.coord.SetCapacity(s.user.ID, s.user.Username, s.room, n)
	default:
		s.reply(fmt.Sprintf("unknown command: %s", line))
	}
}

func (s *Session) chat(text string) {
	if s.user.Username != "" {
		text = fmt.Sprintf("%s: %s", s.user.Username, text)
	}
	s.coord.Broadcast(s.user.ID, s.user.Username, s.room, text)
}

func (s *Session) reply(text string) {
	if err := s.conn.TrySend([]byte(text)); err != nil {
		log.Debug().Err(err).Str("module", "session").Str("user", string(s.user.ID)).Msg("reply dropped")
	}
}
