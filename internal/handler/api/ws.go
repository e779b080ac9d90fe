package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"Kessan/internal/domain/models"
	xlogger "Kessan/pkg/logger"
)

const (
	wsWriteTimeout   = 5 * time.Second
	wsSendBuffer     = 64
	wsPingInterval   = 30 * time.Second
	wsReadDeadline   = 60 * time.Second
	wsMaxMessageSize = 4096
)

// quoteFrame is the wire format pushed to subscribers.
type quoteFrame struct {
	Type      string  `json:"type"`
	Ticker    string  `json:"ticker"`
	Price     float64 `json:"price"`
	Change    float64 `json:"change"`
	ChangePct float64 `json:"change_pct"`
	Source    string  `json:"source"`
	Timestamp int64   `json:"timestamp"`
}

type wsClient struct {
	conn    *websocket.Conn
	send    chan []byte
	tickers map[string]bool // empty means all
	mu      sync.Mutex
}

func (cl *wsClient) wants(ticker string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if len(cl.tickers) == 0 {
		return true
	}
	return cl.tickers[ticker]
}

// QuotesHub fans live quotes out to websocket subscribers.
type QuotesHub struct {
	logger   *xlogger.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*wsClient]bool
}

func NewQuotesHub(logger *xlogger.Logger) *QuotesHub {
	return &QuotesHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]bool),
	}
}

func (h *QuotesHub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/quotes", h.Serve)
}

// ClientCount reports active subscribers.
func (h *QuotesHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastQuote pushes one quote to every interested subscriber.
// Slow clients are dropped rather than blocking the broadcast.
func (h *QuotesHub) BroadcastQuote(quote *models.Quote) {
	frame, err := json.Marshal(quoteFrame{
		Type:      "quote",
		Ticker:    quote.Ticker,
		Price:     quote.Price,
		Change:    quote.Change,
		ChangePct: quote.ChangePct,
		Source:    quote.Source,
		Timestamp: quote.Timestamp.Unix(),
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for cl := range h.clients {
		if !cl.wants(quote.Ticker) {
			continue
		}
		select {
		case cl.send <- frame:
		default:
			go h.drop(cl)
		}
	}
}

func (h *QuotesHub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	cl := &wsClient{
		conn:    conn,
		send:    make(chan []byte, wsSendBuffer),
		tickers: make(map[string]bool),
	}

	h.mu.Lock()
	h.clients[cl] = true
	h.mu.Unlock()

	h.logger.Debug("websocket client connected",
		xlogger.String("remote", conn.RemoteAddr().String()))

	go h.writeLoop(cl)
	h.readLoop(cl)
	return nil
}

// subscribeRequest lets a client narrow the stream to given tickers.
type subscribeRequest struct {
	Action  string   `json:"action"` // "subscribe" or "unsubscribe"
	Tickers []string `json:"tickers"`
}

func (h *QuotesHub) readLoop(cl *wsClient) {
	defer h.drop(cl)

	cl.conn.SetReadLimit(wsMaxMessageSize)
	_ = cl.conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	})

	for {
		_, raw, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}
		var req subscribeRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			continue
		}
		cl.mu.Lock()
		switch req.Action {
		case "subscribe":
			for _, t := range req.Tickers {
				cl.tickers[t] = true
			}
		case "unsubscribe":
			for _, t := range req.Tickers {
				delete(cl.tickers, t)
			}
		}
		cl.mu.Unlock()
	}
}

func (h *QuotesHub) writeLoop(cl *wsClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-cl.send:
			if !ok {
				return
			}
			_ = cl.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := cl.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.drop(cl)
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(cl)
				return
			}
		}
	}
}

func (h *QuotesHub) drop(cl *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[cl]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, cl)
	h.mu.Unlock()

	close(cl.send)
	_ = cl.conn.Close()
}
