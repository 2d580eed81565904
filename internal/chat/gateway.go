package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// PublicRoom is the canonical lobby: every connection joins it and a
	// matching Group row is kept in the store so it shows up in listings.
	PublicRoom = "public"

	// systemUser owns the public group.
	systemUser = "admin"
)

// ErrGroupNameTaken is returned by SaveGroup when the group name unique
// constraint fires on insert. A caller that pre-checked the name only
// sees it when another create slipped in between check and insert.
var ErrGroupNameTaken = errors.New("group name exists")

// Store is the persistent collaborator the gateway talks to. Point
// lookups and inserts, plus one compensating delete: no joins, no
// transactions. Lookups return (nil, nil) when the record is absent.
type Store interface {
	Profile(ctx context.Context, userID string) (*Profile, error)

	GroupByID(ctx context.Context, groupID string) (*Group, error)
	GroupByName(ctx context.Context, name string) (*Group, error)
	SaveGroup(ctx context.Context, g *Group) error

	Membership(ctx context.Context, groupID, userID string) (*GroupMember, error)
	SaveMembership(ctx context.Context, m *GroupMember) error
	MembershipsByUser(ctx context.Context, userID string) ([]GroupMember, error)
	MembershipsByGroup(ctx context.Context, groupID string) ([]GroupMember, error)

	SaveGroupMessage(ctx context.Context, m *GroupMessage) error
	GroupMessages(ctx context.Context, groupID string) ([]GroupMessage, error)

	FriendLink(ctx context.Context, userID, friendID string) (*FriendLink, error)
	SaveFriendLink(ctx context.Context, l *FriendLink) error
	DeleteFriendLink(ctx context.Context, userID, friendID string) error
	FriendLinksByUser(ctx context.Context, userID string) ([]FriendLink, error)

	SaveFriendMessage(ctx context.Context, m *FriendMessage) error
	FriendMessages(ctx context.Context, userID, friendID string) ([]FriendMessage, error)
}

// Gateway holds every websocket event handler. Each handler validates
// against the store, mutates it when valid, and answers with envelope
// events on the affected rooms. Errors never escape a handler.
type Gateway struct {
	hub   *Hub
	store Store
}

func NewGateway(hub *Hub, store Store) *Gateway {
	return &Gateway{hub: hub, store: store}
}

// PairRoom derives the room name for a two-party conversation: the
// lexicographically larger id followed by the smaller one, so both
// sides compute the same name with no stored mapping.
func PairRoom(a, b string) string {
	if a > b {
		return a + b
	}
	return b + a
}

// Connect joins the baseline rooms for a fresh connection and makes
// sure the public group exists. A second connection must not create a
// duplicate; the store's unique name constraint backs the check here.
func (g *Gateway) Connect(ctx context.Context, c *Client) {
	grp, err := g.store.GroupByName(ctx, PublicRoom)
	if err == nil && grp == nil {
		err = g.store.SaveGroup(ctx, &Group{
			GroupID:    PublicRoom,
			GroupName:  PublicRoom,
			UserID:     systemUser,
			CreateTime: time.Now(),
		})
	}
	if err != nil {
		log.Printf("connect: ensure public group: %v", err)
	}

	g.hub.Join(PublicRoom, c)
	if c.UserID != "" {
		g.hub.Join(c.UserID, c)
	}
}

// Dispatch routes one inbound frame to its handler. Unknown events and
// undecodable payloads are dropped.
func (g *Gateway) Dispatch(ctx context.Context, c *Client, frame Frame) {
	switch frame.Event {
	case EventAddGroup:
		var grp Group
		if json.Unmarshal(frame.Data, &grp) == nil {
			g.AddGroup(ctx, c, grp)
		}
	case EventJoinGroup:
		var m GroupMember
		if json.Unmarshal(frame.Data, &m) == nil {
			g.JoinGroup(ctx, c, m)
		}
	case EventJoinGroupSocket:
		var m GroupMember
		if json.Unmarshal(frame.Data, &m) == nil {
			g.JoinGroupSocket(ctx, c, m)
		}
	case EventGroupMessage:
		var msg GroupMessage
		if json.Unmarshal(frame.Data, &msg) == nil {
			g.SendGroupMessage(ctx, c, msg)
		}
	case EventAddFriend:
		var l FriendLink
		if json.Unmarshal(frame.Data, &l) == nil {
			g.AddFriend(ctx, c, l)
		}
	case EventJoinFriendSocket:
		var l FriendLink
		if json.Unmarshal(frame.Data, &l) == nil {
			g.JoinFriendSocket(ctx, c, l)
		}
	case EventFriendMessage:
		var msg FriendMessage
		if json.Unmarshal(frame.Data, &msg) == nil {
			g.SendFriendMessage(ctx, c, msg)
		}
	case EventChatData:
		var p Profile
		if json.Unmarshal(frame.Data, &p) == nil {
			g.ChatData(ctx, c, p.UserID)
		}
	default:
		log.Printf("dispatch: unknown event %q", frame.Event)
	}
}

// AddGroup creates a group, makes its creator the first member, and
// announces it in the new group room.
func (g *Gateway) AddGroup(ctx context.Context, c *Client, data Group) {
	existing, err := g.store.GroupByName(ctx, data.GroupName)
	if err != nil {
		g.hub.Emit(data.UserID, EventAddGroup, Envelope{Code: CodeError, Message: "failed to create group", Data: err.Error()})
		return
	}
	if existing != nil {
		g.hub.Emit(data.UserID, EventAddGroup, Envelope{Code: CodeInvalid, Message: "group name exists", Data: existing})
		return
	}

	data.GroupID = uuid.NewString()
	data.CreateTime = time.Now()
	if err := g.store.SaveGroup(ctx, &data); err != nil {
		if errors.Is(err, ErrGroupNameTaken) {
			// Lost a create race after the name check passed: answer the
			// same way a failed check would have.
			winner, _ := g.store.GroupByName(ctx, data.GroupName)
			g.hub.Emit(data.UserID, EventAddGroup, Envelope{Code: CodeInvalid, Message: "group name exists", Data: winner})
			return
		}
		g.hub.Emit(data.UserID, EventAddGroup, Envelope{Code: CodeError, Message: "failed to create group", Data: err.Error()})
		return
	}

	g.hub.Join(data.GroupID, c)
	member := &GroupMember{GroupID: data.GroupID, UserID: data.UserID}
	if err := g.store.SaveMembership(ctx, member); err != nil {
		// Keep the connection out of a room whose membership never made
		// it to the store.
		g.hub.Leave(data.GroupID, c)
		g.hub.Emit(data.UserID, EventAddGroup, Envelope{Code: CodeError, Message: "failed to create group", Data: err.Error()})
		return
	}

	g.hub.Emit(data.GroupID, EventAddGroup, Envelope{
		Code:    CodeOK,
		Message: fmt.Sprintf("group %s created", data.GroupName),
		Data:    data,
	})
}

// JoinGroup makes the user a member (if not already) and always
// re-broadcasts the join to the group room, so replays double as
// presence notifications.
func (g *Gateway) JoinGroup(ctx context.Context, c *Client, data GroupMember) {
	group, err := g.store.GroupByID(ctx, data.GroupID)
	if err != nil {
		g.hub.Emit(data.UserID, EventJoinGroup, Envelope{Code: CodeError, Message: "failed to join group", Data: err.Error()})
		return
	}
	if group == nil {
		g.hub.Emit(data.UserID, EventJoinGroup, Envelope{Code: CodeInvalid, Message: "group does not exist"})
		return
	}

	member, err := g.store.Membership(ctx, group.GroupID, data.UserID)
	if err != nil {
		g.hub.Emit(data.UserID, EventJoinGroup, Envelope{Code: CodeError, Message: "failed to join group", Data: err.Error()})
		return
	}
	if member == nil {
		if err := g.store.SaveMembership(ctx, &GroupMember{GroupID: group.GroupID, UserID: data.UserID}); err != nil {
			g.hub.Emit(data.UserID, EventJoinGroup, Envelope{Code: CodeError, Message: "failed to join group", Data: err.Error()})
			return
		}
	}

	user, err := g.store.Profile(ctx, data.UserID)
	if err != nil || user == nil {
		g.hub.Emit(data.UserID, EventJoinGroup, Envelope{Code: CodeError, Message: "failed to join group"})
		return
	}

	g.hub.Join(group.GroupID, c)
	g.hub.Emit(group.GroupID, EventJoinGroup, Envelope{
		Code:    CodeOK,
		Message: fmt.Sprintf("%s joined group %s", user.Username, group.GroupName),
		Data:    GroupJoin{Group: *group, User: *user},
	})
}

// JoinGroupSocket is the reconnect fast path: room subscription and
// broadcast only, trusting client-supplied membership. It deliberately
// skips the membership table; JoinGroup is the verified variant.
func (g *Gateway) JoinGroupSocket(ctx context.Context, c *Client, data GroupMember) {
	group, err := g.store.GroupByID(ctx, data.GroupID)
	if err != nil {
		g.hub.Emit(data.UserID, EventJoinGroupSocket, Envelope{Code: CodeError, Message: "failed to join group", Data: err.Error()})
		return
	}
	if group == nil {
		g.hub.Emit(data.UserID, EventJoinGroupSocket, Envelope{Code: CodeInvalid, Message: "group does not exist"})
		return
	}

	user, err := g.store.Profile(ctx, data.UserID)
	if err != nil || user == nil {
		g.hub.Emit(data.UserID, EventJoinGroupSocket, Envelope{Code: CodeError, Message: "failed to join group"})
		return
	}

	g.hub.Join(group.GroupID, c)
	g.hub.Emit(group.GroupID, EventJoinGroupSocket, Envelope{
		Code:    CodeOK,
		Message: fmt.Sprintf("%s joined group %s", user.Username, group.GroupName),
		Data:    GroupJoin{Group: *group, User: *user},
	})
}

// SendGroupMessage persists and fans out a group message. Membership
// gates the send; the broadcast itself is not gated on the insert, so a
// late storage failure costs durability, not delivery.
func (g *Gateway) SendGroupMessage(ctx context.Context, c *Client, data GroupMessage) {
	member, err := g.store.Membership(ctx, data.GroupID, data.UserID)
	if err != nil {
		g.hub.Emit(data.UserID, EventGroupMessage, Envelope{Code: CodeError, Message: "group message send error", Data: err.Error()})
		return
	}
	if member == nil {
		g.hub.Emit(data.UserID, EventGroupMessage, Envelope{Code: CodeInvalid, Message: "group message send error"})
		return
	}

	if data.GroupID == "" {
		return
	}
	if data.MessageType == "" {
		data.MessageType = "text"
	}
	data.Time = time.Now()

	if err := g.store.SaveGroupMessage(ctx, &data); err != nil {
		log.Printf("group message: save: %v", err)
	}
	g.hub.Emit(data.GroupID, EventGroupMessage, Envelope{Code: CodeOK, Data: data})
}

// AddFriend establishes a symmetric friendship: one link row per
// direction. The duplicate notice goes to the two participants'
// personal rooms, never to everyone.
func (g *Gateway) AddFriend(ctx context.Context, c *Client, data FriendLink) {
	if data.UserID == "" || data.FriendID == "" {
		return
	}
	if data.UserID == data.FriendID {
		g.hub.Emit(data.UserID, EventAddFriend, Envelope{Code: CodeInvalid, Message: "cannot add yourself as a friend"})
		return
	}

	forward, err := g.store.FriendLink(ctx, data.UserID, data.FriendID)
	if err != nil {
		g.hub.Emit(data.UserID, EventAddFriend, Envelope{Code: CodeError, Message: "failed to add friend", Data: err.Error()})
		return
	}
	reverse, err := g.store.FriendLink(ctx, data.FriendID, data.UserID)
	if err != nil {
		g.hub.Emit(data.UserID, EventAddFriend, Envelope{Code: CodeError, Message: "failed to add friend", Data: err.Error()})
		return
	}
	if forward != nil || reverse != nil {
		dup := Envelope{Code: CodeInvalid, Message: "already friends", Data: data}
		g.hub.Emit(data.UserID, EventAddFriend, dup)
		g.hub.Emit(data.FriendID, EventAddFriend, dup)
		return
	}

	friend, err := g.store.Profile(ctx, data.FriendID)
	if err != nil {
		g.hub.Emit(data.UserID, EventAddFriend, Envelope{Code: CodeError, Message: "failed to add friend", Data: err.Error()})
		return
	}
	if friend == nil {
		g.hub.Emit(data.UserID, EventAddFriend, Envelope{Code: CodeInvalid, Message: "friend does not exist"})
		return
	}
	user, err := g.store.Profile(ctx, data.UserID)
	if err != nil || user == nil {
		g.hub.Emit(data.UserID, EventAddFriend, Envelope{Code: CodeError, Message: "failed to add friend"})
		return
	}

	if err := g.store.SaveFriendLink(ctx, &FriendLink{UserID: data.UserID, FriendID: data.FriendID}); err != nil {
		g.hub.Emit(data.UserID, EventAddFriend, Envelope{Code: CodeError, Message: "failed to add friend", Data: err.Error()})
		return
	}
	if err := g.store.SaveFriendLink(ctx, &FriendLink{UserID: data.FriendID, FriendID: data.UserID}); err != nil {
		// Take the forward row back out so a retry does not land in the
		// "already friends" branch against a one-way friendship.
		if derr := g.store.DeleteFriendLink(ctx, data.UserID, data.FriendID); derr != nil {
			log.Printf("add friend: undo forward link: %v", derr)
		}
		g.hub.Emit(data.UserID, EventAddFriend, Envelope{Code: CodeError, Message: "failed to add friend", Data: err.Error()})
		return
	}

	g.hub.Join(PairRoom(data.UserID, data.FriendID), c)

	// Two addressed notifications, not one broadcast: each side gets the
	// other's profile.
	g.hub.Emit(data.UserID, EventAddFriend, Envelope{Code: CodeOK, Message: "friend added", Data: friend})
	g.hub.Emit(data.FriendID, EventAddFriend, Envelope{Code: CodeOK, Message: "someone added you as a friend", Data: user})
}

// JoinFriendSocket subscribes the connection to an existing pair room.
// An absent link is a silent no-op.
func (g *Gateway) JoinFriendSocket(ctx context.Context, c *Client, data FriendLink) {
	if data.UserID == "" || data.FriendID == "" {
		return
	}

	link, err := g.store.FriendLink(ctx, data.UserID, data.FriendID)
	if err != nil {
		g.hub.Emit(data.UserID, EventJoinFriendSocket, Envelope{Code: CodeInvalid, Message: "failed to join chat", Data: err.Error()})
		return
	}
	if link == nil {
		return
	}

	g.hub.Join(PairRoom(data.UserID, data.FriendID), c)
	ok := Envelope{Code: CodeOK, Message: "joined chat", Data: link}
	g.hub.Emit(data.UserID, EventJoinFriendSocket, ok)
	g.hub.Emit(data.FriendID, EventJoinFriendSocket, ok)
}

// SendFriendMessage persists and fans out a direct message. The link
// precondition mirrors the group send: no friendship, no delivery.
func (g *Gateway) SendFriendMessage(ctx context.Context, c *Client, data FriendMessage) {
	if data.UserID == "" || data.FriendID == "" {
		return
	}

	link, err := g.store.FriendLink(ctx, data.UserID, data.FriendID)
	if err != nil {
		g.hub.Emit(data.UserID, EventFriendMessage, Envelope{Code: CodeError, Message: "message send failed", Data: err.Error()})
		return
	}
	if link == nil {
		g.hub.Emit(data.UserID, EventFriendMessage, Envelope{Code: CodeInvalid, Message: "message send failed"})
		return
	}

	room := PairRoom(data.UserID, data.FriendID)
	// Lazy join: a reconnected sender may not have joined explicitly.
	g.hub.Join(room, c)

	if data.MessageType == "" {
		data.MessageType = "text"
	}
	data.Time = time.Now()

	if err := g.store.SaveFriendMessage(ctx, &data); err != nil {
		g.hub.Emit(data.UserID, EventFriendMessage, Envelope{Code: CodeError, Message: "message send failed", Data: err.Error()})
		return
	}
	g.hub.Emit(room, EventFriendMessage, Envelope{Code: CodeOK, Data: data})
}

// ChatData answers with the user's full conversational state. Fail
// closed: any error during aggregation yields empty views, never a
// partial result.
func (g *Gateway) ChatData(ctx context.Context, c *Client, userID string) {
	if userID == "" {
		return
	}

	data, err := g.collectChatData(ctx, userID)
	if err != nil {
		log.Printf("chat data for %s: %v", userID, err)
		g.hub.Emit(userID, EventChatData, Envelope{
			Code:    CodeInvalid,
			Message: "failed to load chat data",
			Data: ChatData{
				GroupData:  []GroupView{},
				FriendData: []FriendView{},
				UserData:   []Profile{},
			},
		})
		return
	}

	g.hub.Emit(userID, EventChatData, Envelope{Code: CodeOK, Message: "chat data loaded", Data: *data})
}

// collectChatData fans out per-group and per-friend reads concurrently
// and joins them. Ordering inside each view is per-conversation only;
// friend histories are merged and sorted ascending by timestamp.
func (g *Gateway) collectChatData(ctx context.Context, userID string) (*ChatData, error) {
	memberships, err := g.store.MembershipsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	links, err := g.store.FriendLinksByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	groups := make([]GroupView, len(memberships))
	friends := make([]FriendView, len(links))

	var rosterMu sync.Mutex
	rosterSeen := make(map[string]struct{})
	var roster []Profile
	addRoster := func(p Profile) {
		rosterMu.Lock()
		defer rosterMu.Unlock()
		if _, ok := rosterSeen[p.UserID]; ok {
			return
		}
		rosterSeen[p.UserID] = struct{}{}
		roster = append(roster, p)
	}

	eg, ctx := errgroup.WithContext(ctx)

	for i, m := range memberships {
		i, m := i, m
		eg.Go(func() error {
			grp, err := g.store.GroupByID(ctx, m.GroupID)
			if err != nil {
				return err
			}
			if grp == nil {
				return fmt.Errorf("group %s missing", m.GroupID)
			}
			msgs, err := g.store.GroupMessages(ctx, m.GroupID)
			if err != nil {
				return err
			}
			groups[i] = GroupView{Group: *grp, Messages: msgs}
			return nil
		})
		eg.Go(func() error {
			members, err := g.store.MembershipsByGroup(ctx, m.GroupID)
			if err != nil {
				return err
			}
			for _, mm := range members {
				p, err := g.store.Profile(ctx, mm.UserID)
				if err != nil {
					return err
				}
				if p != nil {
					addRoster(*p)
				}
			}
			return nil
		})
	}

	for i, l := range links {
		i, l := i, l
		eg.Go(func() error {
			p, err := g.store.Profile(ctx, l.FriendID)
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("friend %s missing", l.FriendID)
			}
			sent, err := g.store.FriendMessages(ctx, userID, l.FriendID)
			if err != nil {
				return err
			}
			received, err := g.store.FriendMessages(ctx, l.FriendID, userID)
			if err != nil {
				return err
			}
			msgs := append(sent, received...)
			sort.Slice(msgs, func(a, b int) bool { return msgs[a].Time.Before(msgs[b].Time) })
			friends[i] = FriendView{Profile: *p, Messages: msgs}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	// Roster = co-members of every joined group plus the friends list,
	// deduplicated by user id.
	for _, f := range friends {
		addRoster(f.Profile)
	}

	return &ChatData{GroupData: groups, FriendData: friends, UserData: roster}, nil
}
