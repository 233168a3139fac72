package signaling

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// wsPeer serializes writes to one websocket; gorilla connections allow a
// single concurrent writer.
type wsPeer struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu sync.Mutex
}

func newWSPeer(conn *websocket.Conn, writeTimeout time.Duration) *wsPeer {
	return &wsPeer{id: uuid.NewString(), conn: conn, writeTimeout: writeTimeout}
}

func (p *wsPeer) ID() string { return p.id }

func (p *wsPeer) Send(payload []byte) error {
	return p.write(websocket.TextMessage, payload)
}

func (p *wsPeer) ping() error {
	return p.write(websocket.PingMessage, nil)
}

func (p *wsPeer) write(kind int, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout)); err != nil {
		return err
	}
	return p.conn.WriteMessage(kind, payload)
}

func (p *wsPeer) Close() error {
	return p.closeWith(websocket.CloseNormalClosure)
}

// closeWith sends a close frame with code and closes the socket. Closing
// twice is harmless; the second call just returns the net error.
func (p *wsPeer) closeWith(code int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, ""),
		time.Now().Add(time.Second),
	)
	return p.conn.Close()
}
