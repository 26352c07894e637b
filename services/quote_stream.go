package services

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	maxStreamClients = 100
	writeTimeout     = 10 * time.Second
	pongTimeout      = 60 * time.Second
	pingInterval     = 30 * time.Second
)

// QuoteUpdate is pushed to connected clients whenever the quote service
// refreshes a cached price.
type QuoteUpdate struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	At     time.Time       `json:"at"`
}

type streamClient struct {
	conn *websocket.Conn
	send chan QuoteUpdate
}

// QuoteStream is a websocket hub broadcasting live quote refreshes. It is a
// read-only surface; dropping a slow client never blocks the quote service.
type QuoteStream struct {
	clients    map[*streamClient]bool
	broadcast  chan QuoteUpdate
	register   chan *streamClient
	unregister chan *streamClient
	shutdown   chan struct{}
	upgrader   websocket.Upgrader
	log        *zap.Logger
}

// NewQuoteStream creates the hub and starts its loop.
func NewQuoteStream(log *zap.Logger) *QuoteStream {
	s := &QuoteStream{
		clients:    make(map[*streamClient]bool),
		broadcast:  make(chan QuoteUpdate, 256),
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		shutdown:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
	go s.run()
	return s
}

func (s *QuoteStream) run() {
	for {
		select {
		case <-s.shutdown:
			for client := range s.clients {
				close(client.send)
				client.conn.Close()
			}
			s.clients = make(map[*streamClient]bool)
			return
		case client := <-s.register:
			if len(s.clients) >= maxStreamClients {
				client.conn.Close()
				continue
			}
			s.clients[client] = true
		case client := <-s.unregister:
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
			}
		case update := <-s.broadcast:
			for client := range s.clients {
				select {
				case client.send <- update:
				default:
					// Slow consumer, disconnect it.
					delete(s.clients, client)
					close(client.send)
					client.conn.Close()
				}
			}
		}
	}
}

// Broadcast queues an update for all connected clients without blocking.
func (s *QuoteStream) Broadcast(update QuoteUpdate) {
	select {
	case s.broadcast <- update:
	default:
		s.log.Debug("quote stream buffer full, dropping update", zap.String("symbol", update.Symbol))
	}
}

// Shutdown disconnects all clients and stops the hub loop.
func (s *QuoteStream) Shutdown() {
	close(s.shutdown)
}

// ServeWS upgrades an HTTP request into a streaming connection.
func (s *QuoteStream) ServeWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &streamClient{conn: conn, send: make(chan QuoteUpdate, 16)}
	s.register <- client

	go s.writePump(client)
	go s.readPump(client)
}

func (s *QuoteStream) writePump(client *streamClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case update, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(update); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *QuoteStream) readPump(client *streamClient) {
	defer func() {
		s.unregister <- client
		client.conn.Close()
	}()
	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
