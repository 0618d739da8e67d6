package domain

type RoomID string

// MemberInfo is the unit of the room digest: an identity plus the
// display-name snapshot taken when the member last joined or renamed.
type MemberInfo struct {
	UserID   UserID `json:"user_id"`
	Username string `json:"user_name"`
}
