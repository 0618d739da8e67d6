package coord

import (
	"encoding/json"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"lobbyd/internal/domain"
)

// RoomDigest is the point-in-time view of one room sent privately to a
// newly connected identity so its client can render a lobby screen.
type RoomDigest struct {
	RoomID domain.RoomID       `json:"room_id"`
	Owner  domain.MemberInfo   `json:"owner"`
	Users  []domain.MemberInfo `json:"users"`
}

func (c *Coordinator) snapshot() []RoomDigest {
	out := lo.MapToSlice(c.rooms, func(id domain.RoomID, r *room) RoomDigest {
		return RoomDigest{RoomID: id, Owner: r.owner, Users: r.memberInfos()}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

func (c *Coordinator) digestJSON() []byte {
	b, err := json.Marshal(c.snapshot())
	if err != nil {
		log.Error().Err(err).Str("module", "coord").Msg("digest marshal")
		return []byte("[]")
	}
	return b
}
