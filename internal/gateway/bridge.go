// ABOUTME: Bridges an upgraded gorilla websocket onto a session
// ABOUTME: Serializes writes, maps connect failures to HTTP statuses and runs the read loop

package gateway

import (
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/appstream-gateway/internal/session"
)

const (
	// writeTimeout bounds a single frame write to a slow client.
	writeTimeout = 10 * time.Second

	// closeTimeout bounds the close handshake frame.
	closeTimeout = time.Second

	// maxMessageSize caps inbound frames; asset writes carry audio chunks.
	maxMessageSize = 4 << 20
)

// wsConn adapts a gorilla connection to session.Conn. gorilla allows one
// concurrent writer, so every write holds mu.
type wsConn struct {
	ws *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) WriteText(data []byte) error {
	return c.write(websocket.TextMessage, data)
}

func (c *wsConn) WriteBinary(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

func (c *wsConn) write(kind int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return session.ErrConnClosed
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(kind, data)
}

// Close sends a close frame with code and closes the socket, which also
// ends the read loop. Closing twice is a no-op.
func (c *wsConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout))
	return c.ws.Close()
}

// statusFor maps a refused connect onto the handshake response status.
func statusFor(err error) int {
	switch session.KindOf(err) {
	case session.AuthorizationDenied:
		return http.StatusForbidden
	case session.ResolutionFailure:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func connectMessage(err error) string {
	var serr *session.Error
	if errors.As(err, &serr) {
		return serr.Message()
	}
	return http.StatusText(http.StatusInternalServerError)
}

// upgradeHeader carries cookies set by middleware onto the 101 response,
// which the upgrader writes itself.
func upgradeHeader(w http.ResponseWriter) http.Header {
	cookies := w.Header().Values("Set-Cookie")
	if len(cookies) == 0 {
		return nil
	}
	return http.Header{"Set-Cookie": cookies}
}

// serveSession connects sess, upgrades the request, then feeds every inbound
// frame to it until the client or the session closes the socket.
func (g *Gateway) serveSession(w http.ResponseWriter, r *http.Request, sess session.Session) {
	logger := g.logger.With("session_id", sess.ID(), "path", r.URL.Path)

	if err := sess.Connect(r.Context()); err != nil {
		status := statusFor(err)
		logger.Warn("session refused", "status", status, "kind", session.KindOf(err).String(), "error", err)
		http.Error(w, connectMessage(err), status)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, upgradeHeader(w))
	if err != nil {
		// Upgrade has already written the error response.
		logger.Warn("websocket upgrade failed", "error", err)
		sess.Disconnect(session.CloseInternalError)
		return
	}
	ws.SetReadLimit(maxMessageSize)

	g.track(sess)
	defer g.untrack(sess)

	sess.Accept(g.ctx, newWSConn(ws))

	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) && sess.Connected() {
				logger.Debug("websocket read ended", "error", err)
			}
			sess.Disconnect(session.CloseNormal)
			return
		}
		switch kind {
		case websocket.TextMessage, websocket.BinaryMessage:
			sess.Receive(session.Message{Binary: kind == websocket.BinaryMessage, Data: data})
		}
	}
}

// checkOrigin allows every origin when allowed is empty, otherwise only
// requests whose Origin header matches one entry (scheme and host,
// case-insensitive). Requests without an Origin header are not browsers and
// are allowed.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	normalized := make([]string, 0, len(allowed))
	for _, o := range allowed {
		normalized = append(normalized, strings.ToLower(strings.TrimSuffix(o, "/")))
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return slices.Contains(normalized, strings.ToLower(u.Scheme+"://"+u.Host))
	}
}
