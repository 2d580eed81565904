package chat

import (
	"encoding/json"
	"testing"
)

// testFrame mirrors the wire shape of an outbound event.
type testFrame struct {
	Event   string          `json:"event"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestClient() *Client {
	return &Client{send: make(chan []byte, 16)}
}

// recv pops the next frame a client received, failing the test when
// there is none. Local delivery is synchronous, so no waiting.
func recv(t *testing.T, c *Client) testFrame {
	t.Helper()
	select {
	case raw := <-c.send:
		var f testFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("bad frame %s: %v", raw, err)
		}
		return f
	default:
		t.Fatal("expected a frame, got none")
		return testFrame{}
	}
}

func recvNone(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("expected silence, got %s", raw)
	default:
	}
}

func TestPairRoomSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"u1", "u2"},
		{"9", "10"},
		{"abc", "abd"},
	}
	for _, p := range pairs {
		ab, ba := PairRoom(p[0], p[1]), PairRoom(p[1], p[0])
		if ab != ba {
			t.Errorf("PairRoom(%q,%q)=%q but PairRoom(%q,%q)=%q", p[0], p[1], ab, p[1], p[0], ba)
		}
	}
}

func TestEmitReachesRoomMembers(t *testing.T) {
	h := NewHub(nil)
	a, b, outsider := newTestClient(), newTestClient(), newTestClient()
	h.Join("room1", a)
	h.Join("room1", b)
	h.Join("room2", outsider)

	h.Emit("room1", EventGroupMessage, Envelope{Code: CodeOK, Message: "hi"})

	for _, c := range []*Client{a, b} {
		f := recv(t, c)
		if f.Event != EventGroupMessage || f.Code != CodeOK || f.Message != "hi" {
			t.Errorf("unexpected frame %+v", f)
		}
	}
	recvNone(t, outsider)
}

func TestEmitEmptyRoomIsNoop(t *testing.T) {
	h := NewHub(nil)
	// No subscribers anywhere: must not panic or error.
	h.Emit("ghost", EventChatData, Envelope{Code: CodeOK})
	if n := h.RoomSize("ghost"); n != 0 {
		t.Errorf("ghost room has %d members", n)
	}
}

func TestLeaveRemovesEmptyRoom(t *testing.T) {
	h := NewHub(nil)
	c := newTestClient()
	h.Join("r", c)
	if h.RoomSize("r") != 1 {
		t.Fatalf("room size = %d, want 1", h.RoomSize("r"))
	}
	h.Leave("r", c)
	if h.RoomSize("r") != 0 {
		t.Errorf("room size = %d after leave, want 0", h.RoomSize("r"))
	}

	h.Emit("r", EventGroupMessage, Envelope{Code: CodeOK})
	recvNone(t, c)
}

func TestDropLeavesAllRoomsAndClosesSend(t *testing.T) {
	h := NewHub(nil)
	c := newTestClient()
	h.Join("a", c)
	h.Join("b", c)

	h.Drop(c)

	if h.RoomSize("a") != 0 || h.RoomSize("b") != 0 {
		t.Error("drop left client in a room")
	}
	if _, open := <-c.send; open {
		t.Error("send channel still open after drop")
	}

	// A second drop must be harmless.
	h.Drop(c)
}

func TestRejoinAfterImplicitRoomDeletion(t *testing.T) {
	h := NewHub(nil)
	c := newTestClient()
	h.Join("r", c)
	h.Leave("r", c)
	// Room vanished; joining again recreates it implicitly.
	h.Join("r", c)
	if h.RoomSize("r") != 1 {
		t.Errorf("room size = %d after rejoin, want 1", h.RoomSize("r"))
	}
}

func TestDeliverDropsStuckClient(t *testing.T) {
	h := NewHub(nil)
	stuck := &Client{send: make(chan []byte)} // unbuffered, never drained
	ok := newTestClient()
	h.Join("r", stuck)
	h.Join("r", ok)

	h.Emit("r", EventGroupMessage, Envelope{Code: CodeOK})

	if h.RoomSize("r") != 1 {
		t.Errorf("room size = %d, want 1 (stuck client dropped)", h.RoomSize("r"))
	}
	recv(t, ok)
}
