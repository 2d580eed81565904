package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	BaseURL   = "http://localhost:8080"
	WSURL     = "ws://localhost:8080/ws"
	PairCount = 50 // ⚠️ Start small. Database might choke on 500 immediately.
	MsgCount  = 20 // Messages per user
)

type AuthResponse struct {
	Token string `json:"access_token"`
	User  struct {
		UserID   string `json:"userId"`
		Username string `json:"username"`
	} `json:"user"`
}

func main() {
	log.Printf("🔥 STARTING STRESS TEST: %d Users, %d Messages each...", PairCount*2, MsgCount)
	var wg sync.WaitGroup

	// We will create pairs: User 0 talks to User 1, User 2 talks to User 3...
	for i := 0; i < PairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Println("✅ LOAD TEST COMPLETE")
}

func runPair(pairID int) {
	userA := fmt.Sprintf("u_%d_a", pairID)
	userB := fmt.Sprintf("u_%d_b", pairID)
	pass := "password123"

	// 1. Register & Login
	idA := authenticate(userA, pass)
	idB := authenticate(userB, pass)

	if idA == "" || idB == "" {
		return // Failed auth
	}

	// 2. Both sides connect, A adds B as a friend
	connA := dialWS(idA, userA)
	connB := dialWS(idB, userB)
	if connA == nil || connB == nil {
		return
	}
	defer connA.Close()
	defer connB.Close()

	sendEvent(connA, "addFriend", map[string]string{"userId": idA, "friendId": idB})
	// B subscribes to the pair room before the spam starts
	time.Sleep(100 * time.Millisecond)
	sendEvent(connB, "joinFriendSocket", map[string]string{"userId": idB, "friendId": idA})

	// 3. WebSocket spam (both directions)
	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamChat(&wsWg, connA, idA, idB, userA)
	go spamChat(&wsWg, connB, idB, idA, userB)
	wsWg.Wait()
}

// authenticate registers (ignores error if exists) and logs in,
// returning the userId.
func authenticate(username, password string) string {
	// Register (Ignore error, might already exist)
	postJSON("/register", map[string]string{"username": username, "password": password})

	resp, err := postJSON("/login", map[string]string{"username": username, "password": password})
	if err != nil {
		log.Printf("❌ Login Failed [%s]: %v", username, err)
		return ""
	}
	defer resp.Body.Close()

	var data AuthResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.User.UserID
}

func dialWS(userID, user string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?userId=%s", WSURL, userID), nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", user, err)
		return nil
	}
	// Drain broadcasts so the server never sees us as a stuck client.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return conn
}

func sendEvent(conn *websocket.Conn, event string, data any) {
	conn.WriteJSON(map[string]any{"event": event, "data": data})
}

func spamChat(wg *sync.WaitGroup, conn *websocket.Conn, userID, friendID, user string) {
	defer wg.Done()

	for i := 0; i < MsgCount; i++ {
		sendEvent(conn, "friendMessage", map[string]string{
			"userId":   userID,
			"friendId": friendID,
			"content":  fmt.Sprintf("LoadTest Msg %d from %s", i, user),
		})
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}
	log.Printf("✅ %s finished sending %d msgs", user, MsgCount)
}

func postJSON(endpoint string, data interface{}) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(BaseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
