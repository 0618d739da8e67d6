package coord

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobbyd/internal/domain"
)

func TestRoomAckCountsToCapacity(t *testing.T) {
	r := newRoom("r1", domain.MemberInfo{UserID: "u1", Username: "alice"}, 2)
	r.add("u1", "alice")
	r.add("u2", "bob")

	added, complete := r.ack("u1")
	assert.True(t, added)
	assert.False(t, complete)

	added, complete = r.ack("u2")
	assert.True(t, added)
	assert.True(t, complete)
}

func TestRoomAckIdempotent(t *testing.T) {
	r := newRoom("r1", domain.MemberInfo{}, 2)
	r.add("u1", "alice")

	added, _ := r.ack("u1")
	require.True(t, added)
	added, complete := r.ack("u1")
	assert.False(t, added)
	assert.False(t, complete)
	assert.Len(t, r.ackSet, 1)
}

func TestRoomAckDisabled(t *testing.T) {
	r := newRoom("r1", domain.MemberInfo{}, 0)
	r.add("u1", "alice")

	added, complete := r.ack("u1")
	assert.False(t, added)
	assert.False(t, complete)
	assert.False(t, r.cancelAck("u1"))
}

func TestRoomResetRoundOpensNext(t *testing.T) {
	r := newRoom("r1", domain.MemberInfo{}, 1)
	r.add("u1", "alice")

	_, complete := r.ack("u1")
	require.True(t, complete)
	r.resetRound()

	added, complete := r.ack("u1")
	assert.True(t, added, "same member can ack again after reset")
	assert.True(t, complete)
}

func TestRoomRemoveDropsAck(t *testing.T) {
	r := newRoom("r1", domain.MemberInfo{}, 2)
	r.add("u1", "alice")
	r.add("u2", "bob")

	r.ack("u1")
	require.True(t, r.remove("u1"))
	assert.Empty(t, r.ackSet, "ack set stays a subset of membership")
	assert.False(t, r.remove("u1"), "second remove is a no-op")
}

func TestRoomMemberInfosSorted(t *testing.T) {
	r := newRoom("r1", domain.MemberInfo{}, 0)
	r.add("b", "bob")
	r.add("a", "alice")

	infos := r.memberInfos()
	require.Len(t, infos, 2)
	assert.Equal(t, domain.UserID("a"), infos[0].UserID)
	assert.Equal(t, domain.UserID("b"), infos[1].UserID)
}
