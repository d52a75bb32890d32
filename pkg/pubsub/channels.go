package pubsub

import "fmt"

// Channel naming conventions for chat fan-out.
const (
	// All room, user and broadcast operations share one channel so that every
	// instance observes them in publish order.
	ChannelChatFanout = "%s:fanout"

	DefaultChannelPrefix = "chat"
)

// Event types carried on the fan-out channel.
const (
	EventJoinUser = "join_user"
	EventToRoom   = "to_room"
	EventToUser   = "to_user"
	EventToAll    = "to_all"
)

// ChatFanoutChannel returns the fan-out channel name for the given prefix.
func ChatFanoutChannel(prefix string) string {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return fmt.Sprintf(ChannelChatFanout, prefix)
}
