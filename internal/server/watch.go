package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	watchWriteWait = 10 * time.Second
	watchPongWait  = 60 * time.Second
	watchPingEvery = (watchPongWait * 9) / 10
)

// watchPollInterval is how often the store is checked for progress.
var watchPollInterval = 500 * time.Millisecond

var watchUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// handleWatchJob streams job records over a websocket. Each update of the
// job pushes one JSON message; the stream ends after the terminal record.
func (s *Server) handleWatchJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.store.Get(id); !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	conn, err := watchUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(watchPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(watchPongWait))
	})

	// Reader only consumes control frames and detects the client going away.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	poll := time.NewTicker(watchPollInterval)
	defer poll.Stop()
	ping := time.NewTicker(watchPingEvery)
	defer ping.Stop()

	var lastUpdate time.Time
	for {
		select {
		case <-r.Context().Done():
			return
		case <-clientGone:
			return
		case <-ping.C:
			if err := conn.SetWriteDeadline(time.Now().Add(watchWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-poll.C:
			j, ok := s.store.Get(id)
			if !ok {
				return
			}
			if !j.UpdatedAt.After(lastUpdate) {
				continue
			}
			lastUpdate = j.UpdatedAt
			if err := conn.SetWriteDeadline(time.Now().Add(watchWriteWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(s.view(j)); err != nil {
				return
			}
			if j.Terminal() {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, j.Status),
					time.Now().Add(watchWriteWait))
				return
			}
		}
	}
}
