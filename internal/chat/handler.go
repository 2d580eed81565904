package chat

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

// Handler exposes the websocket entry point and the read-only HTTP
// listing endpoints that share the chat store.
type Handler struct {
	hub     *Hub
	gateway *Gateway
	repo    *Repository
}

func NewHandler(hub *Hub, gateway *Gateway, repo *Repository) *Handler {
	return &Handler{hub: hub, gateway: gateway, repo: repo}
}

// ServeWs upgrades the connection and joins the baseline rooms. The
// userId query parameter is optional: anonymous connections still get
// public broadcasts, they just have no personal room.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := &Client{
		hub:     h.hub,
		gateway: h.gateway,
		conn:    conn,
		send:    make(chan []byte, 256),
		UserID:  r.URL.Query().Get("userId"),
	}
	h.gateway.Connect(r.Context(), client)

	go client.writePump()
	go client.readPump()
}

func (h *Handler) writeJSON(w http.ResponseWriter, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(env)
}

// PostGroups handles POST /api/group/list with {"groupIds": [...]}.
func (h *Handler) PostGroups(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GroupIDs []string `json:"groupIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	groups, err := h.repo.GroupsByIDs(r.Context(), req.GroupIDs)
	if err != nil {
		h.writeJSON(w, Envelope{Code: CodeError, Message: "failed to list groups", Data: err.Error()})
		return
	}
	h.writeJSON(w, Envelope{Code: CodeOK, Data: groups})
}

// GetUserGroups handles GET /api/group/user?userId=...
func (h *Handler) GetUserGroups(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	groups, err := h.repo.UserGroups(r.Context(), userID)
	if err != nil {
		h.writeJSON(w, Envelope{Code: CodeError, Message: "failed to list groups", Data: err.Error()})
		return
	}
	h.writeJSON(w, Envelope{Code: CodeOK, Data: groups})
}

// GetGroupMembers handles GET /api/group/members?groupId=...
func (h *Handler) GetGroupMembers(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("groupId")
	if groupID == "" {
		http.Error(w, "groupId is required", http.StatusBadRequest)
		return
	}

	profiles, err := h.repo.GroupMemberProfiles(r.Context(), groupID)
	if err != nil {
		h.writeJSON(w, Envelope{Code: CodeError, Message: "failed to list members", Data: err.Error()})
		return
	}
	h.writeJSON(w, Envelope{Code: CodeOK, Data: profiles})
}

// GetGroupMessages handles GET /api/group/messages?groupId=...
func (h *Handler) GetGroupMessages(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("groupId")
	if groupID == "" {
		http.Error(w, "groupId is required", http.StatusBadRequest)
		return
	}

	messages, err := h.repo.GroupMessages(r.Context(), groupID)
	if err != nil {
		h.writeJSON(w, Envelope{Code: CodeError, Message: "failed to list messages", Data: err.Error()})
		return
	}
	h.writeJSON(w, Envelope{Code: CodeOK, Data: messages})
}

// FindGroups handles GET /api/group/find?groupName=...&exact=true
func (h *Handler) FindGroups(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("groupName")
	if name == "" {
		http.Error(w, "groupName is required", http.StatusBadRequest)
		return
	}
	exact := r.URL.Query().Get("exact") == "true"

	groups, err := h.repo.GroupsByName(r.Context(), name, exact)
	if err != nil {
		h.writeJSON(w, Envelope{Code: CodeError, Message: "failed to find groups", Data: err.Error()})
		return
	}
	h.writeJSON(w, Envelope{Code: CodeOK, Data: groups})
}
