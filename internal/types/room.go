package types

import "fmt"

type RoomKind int

const (
	UserRoomKind RoomKind = iota + 1
	ChannelRoomKind
)

// RoomId names a hub room. User and channel identifiers live in separate
// spaces, so a user id never collides with a channel id of the same value.
type RoomId struct {
	Kind RoomKind
	Id   string
}

func UserRoom(userId string) RoomId {
	return RoomId{Kind: UserRoomKind, Id: userId}
}

func ChannelRoom(channelId string) RoomId {
	return RoomId{Kind: ChannelRoomKind, Id: channelId}
}

func (r RoomId) IsUser() bool    { return r.Kind == UserRoomKind }
func (r RoomId) IsChannel() bool { return r.Kind == ChannelRoomKind }

func (r RoomId) String() string {
	switch r.Kind {
	case UserRoomKind:
		return fmt.Sprintf("user:%s", r.Id)
	case ChannelRoomKind:
		return fmt.Sprintf("channel:%s", r.Id)
	default:
		return fmt.Sprintf("unknown:%s", r.Id)
	}
}
