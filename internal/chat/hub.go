package chat

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// eventsChannel is the redis pub/sub channel shared by all server
// instances. Every Emit is published there so rooms span instances.
const eventsChannel = "chat:events"

// wireFrame wraps a room-scoped payload for the redis channel. Origin
// lets an instance drop its own echoes: local delivery already happened
// synchronously inside Emit.
type wireFrame struct {
	Origin  string          `json:"origin"`
	Room    string          `json:"room"`
	Payload json.RawMessage `json:"payload"`
}

// Hub is the in-memory room registry: a named broadcast set of live
// connections per room. Rooms come into being on first Join and vanish
// when the last member leaves; nothing here is persisted.
type Hub struct {
	id    string
	redis *redis.Client

	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	joined map[*Client]map[string]struct{} // reverse index for Drop
}

// NewHub builds a hub. redisClient may be nil, in which case fan-out is
// local to this instance only.
func NewHub(redisClient *redis.Client) *Hub {
	return &Hub{
		id:     uuid.NewString(),
		redis:  redisClient,
		rooms:  make(map[string]map[*Client]struct{}),
		joined: make(map[*Client]map[string]struct{}),
	}
}

func (h *Hub) Join(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	if _, ok := h.joined[c]; !ok {
		h.joined[c] = make(map[string]struct{})
	}
	h.joined[c][room] = struct{}{}
}

func (h *Hub) Leave(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(room, c)
}

func (h *Hub) leaveLocked(room string, c *Client) {
	if m, ok := h.rooms[room]; ok {
		delete(m, c)
		if len(m) == 0 {
			delete(h.rooms, room)
		}
	}
	if r, ok := h.joined[c]; ok {
		delete(r, room)
	}
}

// Drop removes a client from every room it joined and closes its send
// channel. Called once, from the read pump, when the connection dies.
func (h *Hub) Drop(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rooms, ok := h.joined[c]; ok {
		for room := range rooms {
			h.leaveLocked(room, c)
		}
		delete(h.joined, c)
		close(c.send)
	}
}

// RoomSize reports how many clients a room currently has. Zero means the
// room does not exist right now; broadcasting to it is a no-op.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Emit sends an envelope to every live connection in the room, then
// publishes it for the other instances. A room with no subscribers
// anywhere is simply silence, not an error.
func (h *Hub) Emit(room, event string, env Envelope) {
	payload, err := json.Marshal(outFrame{Event: event, Envelope: env})
	if err != nil {
		log.Printf("emit %s: marshal: %v", event, err)
		return
	}
	h.deliver(room, payload)

	if h.redis == nil {
		return
	}
	wire, err := json.Marshal(wireFrame{Origin: h.id, Room: room, Payload: payload})
	if err != nil {
		return
	}
	if err := h.redis.Publish(context.Background(), eventsChannel, wire).Err(); err != nil {
		log.Printf("emit %s: redis publish: %v", event, err)
	}
}

func (h *Hub) deliver(room string, payload []byte) {
	h.mu.RLock()
	var stuck []*Client
	for c := range h.rooms[room] {
		select {
		case c.send <- payload:
		default:
			// Send buffer full: the client stopped draining. Cut it
			// loose rather than block the whole room.
			stuck = append(stuck, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stuck {
		h.Drop(c)
	}
}

// SubscribeToRedis fans remote emits into local rooms. Run it in its
// own goroutine; it returns when ctx is cancelled.
func (h *Hub) SubscribeToRedis(ctx context.Context) {
	if h.redis == nil {
		return
	}
	pubsub := h.redis.Subscribe(ctx, eventsChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var wf wireFrame
			if err := json.Unmarshal([]byte(msg.Payload), &wf); err != nil {
				log.Printf("redis subscribe: bad frame: %v", err)
				continue
			}
			if wf.Origin == h.id {
				continue
			}
			h.deliver(wf.Room, wf.Payload)
		}
	}
}
