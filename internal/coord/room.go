package coord

import (
	"sort"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"lobbyd/internal/domain"
)

// LobbyID is the well-known entry room every connection lands in.
// It is derived from fixed bytes so it stays stable across restarts
// and across processes without any coordination.
var LobbyID = domain.RoomID(uuid.Must(uuid.FromBytes([]byte("entry___________"))).String())

// room is the coordinator-private membership set plus barrier state.
// It is only ever touched from the coordinator loop, so it needs no lock.
type room struct {
	id       domain.RoomID
	owner    domain.MemberInfo
	members  map[domain.UserID]string
	ackSet   map[domain.UserID]struct{}
	capacity int
}

func newRoom(id domain.RoomID, owner domain.MemberInfo, capacity int) *room {
	return &room{
		id:       id,
		owner:    owner,
		members:  make(map[domain.UserID]string),
		ackSet:   make(map[domain.UserID]struct{}),
		capacity: capacity,
	}
}

func (r *room) add(id domain.UserID, name string) {
	r.members[id] = name
}

// remove drops the member and any ready signal it holds, so the ack set
// stays a subset of the membership.
func (r *room) remove(id domain.UserID) bool {
	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	delete(r.ackSet, id)
	return true
}

func (r *room) isMember(id domain.UserID) bool {
	_, ok := r.members[id]
	return ok
}

// ack records a ready signal for the current round. added is false when
// the member already signalled this round; complete is true when the
// round reached capacity with this signal.
func (r *room) ack(id domain.UserID) (added, complete bool) {
	if r.capacity <= 0 {
		return false, false
	}
	if _, ok := r.ackSet[id]; ok {
		return false, false
	}
	r.ackSet[id] = struct{}{}
	return true, len(r.ackSet) >= r.capacity
}

func (r *room) cancelAck(id domain.UserID) bool {
	if r.capacity <= 0 {
		return false
	}
	if _, ok := r.ackSet[id]; !ok {
		return false
	}
	delete(r.ackSet, id)
	return true
}

// resetRound opens the next ready round.
func (r *room) resetRound() {
	r.ackSet = make(map[domain.UserID]struct{})
}

func (r *room) memberInfos() []domain.MemberInfo {
	out := lo.MapToSlice(r.members, func(id domain.UserID, name string) domain.MemberInfo {
		return domain.MemberInfo{UserID: id, Username: name}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
