package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The web UI is served from a different origin during development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	pingInterval  = 15 * time.Second
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	maxPingMisses = 3
)

// wsConn wraps a websocket connection with a write mutex. gorilla/websocket
// allows only one concurrent writer; the event pump and the ping loop both
// write.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// handleCommandSocket streams a command's live output. Frames are chunk
// objects followed by exactly one terminal object, after which the socket
// closes. There is no replay: a late subscriber only sees events published
// after it connected.
func (s *Server) handleCommandSocket(w http.ResponseWriter, r *http.Request) {
	commandID := r.PathValue("id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	wc := &wsConn{conn: conn}
	defer conn.Close()

	sub := s.bcast.Subscribe(commandID)
	defer s.bcast.Unsubscribe(commandID, sub)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Drain client frames so pongs and close frames are processed.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	pingMisses := 0
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				// Terminal was delivered (or the command was never
				// known); the channel close ends the tail.
				wc.writeMu.Lock()
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				wc.writeMu.Unlock()
				return
			}
			var err error
			if ev.Chunk != nil {
				err = wc.writeJSON(ev.Chunk)
			} else if ev.Terminal != nil {
				err = wc.writeJSON(ev.Terminal)
			}
			if err != nil {
				s.log.Debug().Err(err).Str("command_id", commandID).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			if err := wc.ping(); err != nil {
				pingMisses++
				if pingMisses >= maxPingMisses {
					s.log.Debug().Str("command_id", commandID).Msg("websocket client unresponsive, closing")
					return
				}
				continue
			}
			pingMisses = 0

		case <-readerDone:
			return
		}
	}
}
