package session

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobbyd/internal/coord"
	"lobbyd/internal/domain"
)

type fakeCommander struct {
	mu    sync.Mutex
	calls []string
	rooms []string
}

func (f *fakeCommander) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeCommander) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCommander) Connect(id domain.UserID, name string, h coord.Handle) []byte {
	f.record("connect %s", id)
	return []byte("[]")
}

func (f *fakeCommander) Disconnect(id domain.UserID) {
	f.record("disconnect %s", id)
}

func (f *fakeCommander) CreateRoom(id domain.UserID, name string, roomID domain.RoomID) {
	f.record("create %s %s", id, roomID)
}

func (f *fakeCommander) JoinRoom(id domain.UserID, name string, roomID domain.RoomID) {
	f.record("join %s %s", id, roomID)
}

func (f *fakeCommander) Broadcast(id domain.UserID, name string, roomID domain.RoomID, text string) {
	f.record("broadcast %s %s %q", id, roomID, text)
}

func (f *fakeCommander) ListRooms() []string {
	f.record("list")
	return f.rooms
}

func (f *fakeCommander) Ack(id domain.UserID, name string, roomID domain.RoomID) {
	f.record("ack %s %s", id, roomID)
}

func (f *fakeCommander) AckCancel(id domain.UserID, name string, roomID domain.RoomID) {
	f.record("rm_ack %s %s", id, roomID)
}

func (f *fakeCommander) SetCapacity(id domain.UserID, name string, roomID domain.RoomID, n int) {
	f.record("set_num %s %s %d", id, roomID, n)
}

type fakeConn struct {
	mu     sync.Mutex
	sent   []string
	pings  int
	closed bool
}

func (c *fakeConn) TrySend(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, string(b))
	return nil
}

func (c *fakeConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) replies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newTestSession(t *testing.T) (*Session, *fakeCommander, *fakeConn) {
	t.Helper()
	cmdr := &fakeCommander{}
	conn := &fakeConn{}
	s := New("u1", cmdr, conn, time.Minute, 2*time.Minute)
	s.Start()
	t.Cleanup(s.Shutdown)
	return s, cmdr, conn
}

func TestStartRegistersAndSendsDigest(t *testing.T) {
	s, cmdr, conn := newTestSession(t)

	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, []string{"connect u1"}, cmdr.recorded())
	assert.Equal(t, []string{"[]"}, conn.replies())
}

func TestCommandDispatch(t *testing.T) {
	lobby := string(coord.LobbyID)

	tests := []struct {
		name      string
		line      string
		wantCall  string
		wantReply string
	}{
		{name: "join", line: "/join r1", wantCall: "join u1 r1", wantReply: "joined"},
		{name: "join missing arg", line: "/join", wantReply: "room name is required"},
		{name: "name missing arg", line: "/name", wantReply: "name is required"},
		{name: "name too long", line: "/name " + strings.Repeat("x", 40), wantReply: "username too long"},
		{name: "ack", line: "/ack", wantCall: "ack u1 " + lobby},
		{name: "ack cancel", line: "/rm_ack", wantCall: "rm_ack u1 " + lobby},
		{name: "set capacity", line: "/set_num 2", wantCall: "set_num u1 " + lobby + " 2"},
		{name: "set capacity malformed", line: "/set_num two", wantReply: `invalid capacity: "two"`},
		{name: "unknown command", line: "/frobnicate", wantReply: "unknown command: /frobnicate"},
		{name: "plain chat", line: "hello", wantCall: "broadcast u1 " + lobby + ` "hello"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, cmdr, conn := newTestSession(t)

			s.HandleText(tt.line)

			calls := cmdr.recorded()[1:] // drop the connect
			if tt.wantCall != "" {
				require.Len(t, calls, 1)
				assert.Equal(t, tt.wantCall, calls[0])
			} else {
				assert.Empty(t, calls, "malformed input must not reach the coordinator")
			}
			if tt.wantReply != "" {
				assert.Contains(t, conn.replies(), tt.wantReply)
			}
		})
	}
}

func TestCreateGeneratesRoomID(t *testing.T) {
	s, cmdr, conn := newTestSession(t)

	s.HandleText("/create")

	calls := cmdr.recorded()
	require.Len(t, calls, 2)
	require.True(t, strings.HasPrefix(calls[1], "create u1 "))
	newRoom := strings.TrimPrefix(calls[1], "create u1 ")
	assert.NotEqual(t, string(coord.LobbyID), newRoom)
	assert.Contains(t, conn.replies(), "created room successfully: "+newRoom)

	// Chat now targets the created room.
	s.HandleText("hi")
	assert.Contains(t, cmdr.recorded(), fmt.Sprintf("broadcast u1 %s %q", newRoom, "hi"))
}

func TestNamePrefixesChat(t *testing.T) {
	s, cmdr, _ := newTestSession(t)

	s.HandleText("/name alice")
	s.HandleText("hello")

	assert.Contains(t, cmdr.recorded(), fmt.Sprintf("broadcast u1 %s %q", coord.LobbyID, "alice: hello"))
}

func TestJoinRetargetsChatOptimistically(t *testing.T) {
	s, cmdr, _ := newTestSession(t)

	s.HandleText("/join ghost-room")
	s.HandleText("anyone here?")

	assert.Contains(t, cmdr.recorded(), "join u1 ghost-room")
	assert.Contains(t, cmdr.recorded(), fmt.Sprintf("broadcast u1 ghost-room %q", "anyone here?"))
}

func TestListWritesOneLinePerRoom(t *testing.T) {
	cmdr := &fakeCommander{rooms: []string{"r1 by alice", "0: u1, alice"}}
	conn := &fakeConn{}
	s := New("u1", cmdr, conn, time.Minute, 2*time.Minute)
	s.Start()
	t.Cleanup(s.Shutdown)

	s.HandleText("/list")

	replies := conn.replies()
	assert.Contains(t, replies, "r1 by alice")
	assert.Contains(t, replies, "0: u1, alice")
}

func TestShutdownIdempotent(t *testing.T) {
	s, cmdr, conn := newTestSession(t)

	s.Shutdown()
	s.Shutdown()

	assert.Equal(t, StateClosed, s.State())
	assert.True(t, conn.isClosed())

	disconnects := 0
	for _, call := range cmdr.recorded() {
		if call == "disconnect u1" {
			disconnects++
		}
	}
	assert.Equal(t, 1, disconnects, "duplicate close signals issue one disconnect")
}

func TestClosedSessionIgnoresInput(t *testing.T) {
	s, cmdr, _ := newTestSession(t)

	s.Shutdown()
	s.HandleText("/ack")
	s.HandleText("hello")

	for _, call := range cmdr.recorded() {
		assert.NotContains(t, call, "ack")
		assert.NotContains(t, call, "broadcast")
	}
}

func TestHeartbeatTimeoutDisconnects(t *testing.T) {
	cmdr := &fakeCommander{}
	conn := &fakeConn{}
	s := New("u1", cmdr, conn, 10*time.Millisecond, 20*time.Millisecond)
	s.Start()

	require.Eventually(t, func() bool {
		return s.State() == StateClosed
	}, 2*time.Second, 5*time.Millisecond, "silent client must be dropped")
	assert.True(t, conn.isClosed())
	assert.Contains(t, cmdr.recorded(), "disconnect u1")
}

func TestTouchKeepsSessionAlive(t *testing.T) {
	cmdr := &fakeCommander{}
	conn := &fakeConn{}
	s := New("u1", cmdr, conn, 10*time.Millisecond, 50*time.Millisecond)
	s.Start()
	t.Cleanup(s.Shutdown)

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		s.Touch()
		time.Sleep(5 * time.Millisecond)
	}

	assert.Equal(t, StateActive, s.State())
}
