package signaling

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"call-platform/internal/auth"
	"call-platform/internal/metrics"
	"call-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	maxMessageSize = 64 << 10
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
)

// ConnLimiter caps concurrent connections per user.
type ConnLimiter interface {
	Acquire(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

type HandlerOptions struct {
	WriteTimeout   time.Duration
	AllowedOrigins []string
	Limiter        ConnLimiter
}

// Handler upgrades authenticated requests to signaling websockets.
// http.Server.Shutdown does not see hijacked connections, so the handler
// tracks its own and closes them in Shutdown.
type Handler struct {
	relay        *Relay
	upgrader     websocket.Upgrader
	limiter      ConnLimiter
	writeTimeout time.Duration

	mu      sync.Mutex
	peers   map[string]*wsPeer
	closing bool
	active  sync.WaitGroup
}

func NewHandler(relay *Relay, opts HandlerOptions) *Handler {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	return &Handler{
		relay:        relay,
		limiter:      opts.Limiter,
		writeTimeout: opts.WriteTimeout,
		peers:        make(map[string]*wsPeer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
	}
}

// originChecker allows any origin when the list is empty.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Serve runs one signaling connection until the client goes away.
func (h *Handler) Serve(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromGin(c)

	userID, err := auth.UserID(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	capKey := strconv.FormatInt(userID, 10)

	if !h.enter() {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		return
	}
	defer h.active.Done()

	if h.limiter != nil {
		ok, err := h.limiter.Acquire(ctx, capKey)
		switch {
		case err != nil:
			log.Warn("connection cap unavailable, admitting connection", "user_id", userID, "err", err)
		case !ok:
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many signaling connections"})
			return
		default:
			defer func() {
				if err := h.limiter.Release(context.Background(), capKey); err != nil {
					log.Warn("release connection cap", "user_id", userID, "err", err)
				}
			}()
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "err", err)
		return
	}
	peer := newWSPeer(conn, h.writeTimeout)
	if !h.track(peer) {
		_ = peer.closeWith(websocket.CloseGoingAway)
		return
	}
	log = log.With("conn_id", peer.ID(), "user_id", userID)
	ctx = logger.With(ctx, log)

	metrics.RecordConnectionOpened()
	log.Info("signaling connection opened")

	done := make(chan struct{})
	defer func() {
		close(done)
		h.untrack(peer.ID())
		h.relay.Disconnect(ctx, peer)
		_ = peer.Close()
		metrics.RecordConnectionClosed()
		log.Info("signaling connection closed")
	}()

	go h.keepAlive(peer, done)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("unexpected websocket close", "err", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		h.relay.HandleMessage(ctx, peer, userID, data)
	}
}

// Shutdown refuses new connections, closes the open ones with "going away"
// and waits for their read loops to return. Call it before closing
// anything the relay uses.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	open := make([]*wsPeer, 0, len(h.peers))
	for _, p := range h.peers {
		open = append(open, p)
	}
	h.mu.Unlock()

	for _, p := range open {
		_ = p.closeWith(websocket.CloseGoingAway)
	}

	finished := make(chan struct{})
	go func() {
		h.active.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enter counts a request in unless Shutdown has started.
func (h *Handler) enter() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.active.Add(1)
	return true
}

func (h *Handler) track(p *wsPeer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.peers[p.ID()] = p
	return true
}

func (h *Handler) untrack(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, id)
}

func (h *Handler) keepAlive(p *wsPeer, done <-chan struct{}) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := p.ping(); err != nil {
				return
			}
		}
	}
}
