package chat

import "encoding/json"

// Event names shared between client and server. One websocket carries
// all of them; the event field routes a frame to its handler.
const (
	EventAddGroup         = "addGroup"
	EventJoinGroup        = "joinGroup"
	EventJoinGroupSocket  = "joinGroupSocket"
	EventGroupMessage     = "groupMessage"
	EventAddFriend        = "addFriend"
	EventJoinFriendSocket = "joinFriendSocket"
	EventFriendMessage    = "friendMessage"
	EventChatData         = "chatData"
)

// Result codes carried by every envelope.
const (
	CodeOK      = 0
	CodeInvalid = 1 // validation or authorization failure
	CodeError   = 2 // unexpected storage failure
)

// Envelope is the uniform response shape for every operation outcome.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// Frame is one inbound client event. Data stays raw until the handler
// for the event decodes it into its own payload type.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// outFrame is what actually goes over the wire: the envelope plus the
// event it answers.
type outFrame struct {
	Event string `json:"event"`
	Envelope
}
