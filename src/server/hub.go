package server

import (
	"net/http"

	"bond-inventory/src/analysis"
	"bond-inventory/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// handleWebsockets is the main Hub loop
func (s *APIServer) handleWebsockets() {
	for {
		select {
		case <-s.done:
			for client := range s.clients {
				delete(s.clients, client)
				close(client.send)
			}
			s.clientCount.Store(0)
			s.Logger.Info("Hub stopped")
			return

		case client := <-s.register:
			s.clients[client] = struct{}{}
			s.clientCount.Store(int64(len(s.clients)))

			// Send current state on connect so the dashboard renders
			// immediately instead of waiting for the next refresh.
			if msg := s.initialMessage(); msg != nil {
				select {
				case client.send <- msg:
				default:
				}
			}

		case client := <-s.unregister:
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
				s.clientCount.Store(int64(len(s.clients)))
			}

		case message := <-s.broadcast:
			// Broadcast to all clients
			for client := range s.clients {
				select {
				case client.send <- message:
					// Message sent successfully
				default:
					// Client too slow, disconnect to prevent Hub blocking
					delete(s.clients, client)
					close(client.send)
				}
			}
			s.clientCount.Store(int64(len(s.clients)))
		}
	}
}

// -----------------------------------------------------------------------------

// initialMessage builds the INITIAL push payload from the current snapshot,
// or nil when the store has never been populated.
func (s *APIServer) initialMessage() *models.MPushMessage {
	snap := s.Store.Snapshot()
	if snap.Empty() {
		return nil
	}
	msg, err := buildPushMessage(snap, s.Store.Granularity())
	if err != nil {
		s.Logger.Error("Building initial push message failed: %v", err)
		return nil
	}
	msg.Type = "INITIAL"
	return msg
}

// -----------------------------------------------------------------------------

// BroadcastRefresh pushes the post-merge snapshot to all connected clients.
// Wired as the scheduler's OnRefresh hook; never blocks the refresh cycle.
func (s *APIServer) BroadcastRefresh(cache *models.MInventoryCache) {
	msg, err := buildPushMessage(cache, s.Store.Granularity())
	if err != nil {
		s.Logger.Error("Building push message failed: %v", err)
		return
	}

	select {
	case s.broadcast <- msg:
	default:
		s.Logger.Warning("Broadcast queue full, dropping push")
	}
}

// -----------------------------------------------------------------------------

func buildPushMessage(cache *models.MInventoryCache, g models.Granularity) (*models.MPushMessage, error) {
	latest, err := analysis.LatestPerKey(cache, g)
	if err != nil {
		return nil, err
	}
	return &models.MPushMessage{
		Type:      "UPDATE",
		Latest:    latest,
		PieData:   analysis.PercentageBreakdown(latest),
		Timestamp: cache.LastRefreshedAt.Unix(),
	}, nil
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *APIServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		hub:  s,
		conn: conn,
		// Buffered channel to prevent blocking the Hub loop
		send: make(chan *models.MPushMessage, 64),
	}

	s.register <- client

	// Start goroutines for reading/writing
	go client.writePump()
	go client.readPump()
}
