package coord

import "lobbyd/internal/domain"

// Every mutation of coordinator state travels through exactly one of
// these commands. The loop in Run consumes them one at a time, which is
// the only serialization mechanism the registry and rooms rely on.
type command interface {
	isCommand()
}

type connectCmd struct {
	id     domain.UserID
	name   string
	handle Handle
	reply  chan []byte
}

type disconnectCmd struct {
	id domain.UserID
}

type createCmd struct {
	id     domain.UserID
	name   string
	roomID domain.RoomID
}

type joinCmd struct {
	id     domain.UserID
	name   string
	roomID domain.RoomID
}

type broadcastCmd struct {
	id     domain.UserID
	name   string
	roomID domain.RoomID
	text   string
}

type listCmd struct {
	reply chan []string
}

type snapshotCmd struct {
	reply chan []RoomDigest
}

type ackCmd struct {
	id     domain.UserID
	name   string
	roomID domain.RoomID
}

type ackCancelCmd struct {
	id     domain.UserID
	name   string
	roomID domain.RoomID
}

type setCapacityCmd struct {
	id     domain.UserID
	name   string
	roomID domain.RoomID
	n      int
}

func (connectCmd) isCommand()     {}
func (disconnectCmd) isCommand()  {}
func (createCmd) isCommand()      {}
func (joinCmd) isCommand()        {}
func (broadcastCmd) isCommand()   {}
func (listCmd) isCommand()        {}
func (snapshotCmd) isCommand()    {}
func (ackCmd) isCommand()         {}
func (ackCancelCmd) isCommand()   {}
func (setCapacityCmd) isCommand() {}
