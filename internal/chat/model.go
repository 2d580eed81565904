package chat

import "time"

// Durable records. All of these outlive any single connection; rooms
// (see hub.go) are the only ephemeral state in this package.

type Group struct {
	GroupID    string    `json:"groupId"`
	GroupName  string    `json:"groupName"`
	UserID     string    `json:"userId"` // creator
	CreateTime time.Time `json:"createTime"`
}

type GroupMember struct {
	GroupID string `json:"groupId"`
	UserID  string `json:"userId"`
}

type GroupMessage struct {
	ID          int64     `json:"id"`
	GroupID     string    `json:"groupId"`
	UserID      string    `json:"userId"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType"`
	Time        time.Time `json:"time"`
}

type FriendLink struct {
	UserID   string `json:"userId"`
	FriendID string `json:"friendId"`
}

type FriendMessage struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"userId"` // sender
	FriendID    string    `json:"friendId"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType"`
	Time        time.Time `json:"time"`
}

// Profile is the public slice of a user record. The account subsystem
// owns users; this package only ever reads them.
type Profile struct {
	UserID     string    `json:"userId"`
	Username   string    `json:"username"`
	Avatar     string    `json:"avatar"`
	Role       string    `json:"role"`
	Tag        string    `json:"tag"`
	CreateTime time.Time `json:"createTime"`
}

// GroupJoin is the payload broadcast to a group room when someone joins.
type GroupJoin struct {
	Group Group   `json:"group"`
	User  Profile `json:"user"`
}

// Aggregate views assembled by the history aggregator.

type GroupView struct {
	Group
	Messages []GroupMessage `json:"messages"`
}

type FriendView struct {
	Profile
	Messages []FriendMessage `json:"messages"`
}

type ChatData struct {
	GroupData  []GroupView  `json:"groupData"`
	FriendData []FriendView `json:"friendData"`
	UserData   []Profile    `json:"userData"`
}
