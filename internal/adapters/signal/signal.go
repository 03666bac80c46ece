package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/AAYUSKARKI/sanjal-signaling/internal/app"
	"github.com/AAYUSKARKI/sanjal-signaling/internal/config"
	"github.com/AAYUSKARKI/sanjal-signaling/internal/core"
	"github.com/AAYUSKARKI/sanjal-signaling/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type RelayWSController struct {
	Relay  *app.Relay
	Cfg    *config.Config
	Limits *OfferRateLimiter
}

func NewRelayWSController(relay *app.Relay, cfg *config.Config) *RelayWSController {
	return &RelayWSController{
		Relay:  relay,
		Cfg:    cfg,
		Limits: NewOfferRateLimiter(cfg.OfferRateLimit, cfg.OfferRateWindow),
	}
}

// WsConn is one live signaling connection. A single writer goroutine drains
// send, which preserves FIFO delivery per connection; candidate ordering
// depends on it.
type WsConn struct {
	id   core.ConnID
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool

	// identity is bound by the register event; written and read only from
	// the readPump goroutine.
	identity domain.Identity
}

func (c *WsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *RelayWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsConn{
		id:   core.ConnID(uuid.NewString()),
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	log.Info().Str("module", "signal").Str("conn", string(conn.id)).Msg("new WS connection")

	ws.SetReadLimit(ctl.Cfg.ReadLimit)
	ctx, cancel := context.WithCancel(ctx)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, conn, cancel)
}
