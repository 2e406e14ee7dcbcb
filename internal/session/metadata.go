// ABOUTME: Connect-time metadata captured from the websocket handshake
// ABOUTME: Resolves caller IP, location, user agent and identity

package session

import (
	"net"
	"net/http"
	"strings"

	"github.com/2389/appstream-gateway/internal/auth"
	"github.com/2389/appstream-gateway/internal/runner"
)

// Info is what a session knows about its caller when it connects.
type Info struct {
	Request   runner.RequestMeta
	User      *auth.User
	VisitorID string

	// TwilioSignature is the X-Twilio-Signature header of a voice call.
	TwilioSignature string
}

// InfoFromRequest captures the handshake metadata of r. The user and visitor
// id come from the auth middleware.
func InfoFromRequest(r *http.Request) Info {
	return Info{
		Request: runner.RequestMeta{
			IP:          ClientIP(r),
			Location:    r.Header.Get("X-Client-Geo-Location"),
			UserAgent:   r.Header.Get("User-Agent"),
			ContentType: r.Header.Get("Content-Type"),
		},
		User:            auth.UserFromContext(r.Context()),
		VisitorID:       auth.VisitorIDFromContext(r.Context()),
		TwilioSignature: r.Header.Get("X-Twilio-Signature"),
	}
}

// ClientIP returns the first X-Forwarded-For entry, else the peer address,
// else X-Real-IP.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			return ip
		}
	}
	if r.RemoteAddr != "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if host != "" {
			return host
		}
	}
	return r.Header.Get("X-Real-IP")
}

// Username is the owner name recorded on assets: the authenticated username,
// or the anonymous visitor id.
func (i Info) Username() string {
	if !i.User.IsAnonymous() && i.User.Username != "" {
		return i.User.Username
	}
	if !i.User.IsAnonymous() {
		return i.User.ID
	}
	return i.VisitorID
}

// principal is the key quota and rate limits are tracked under.
func (i Info) principal() string {
	if !i.User.IsAnonymous() {
		return i.User.ID
	}
	if i.VisitorID != "" {
		return "visitor:" + i.VisitorID
	}
	return "ip:" + i.Request.IP
}

// rateKey is the key for request rate limiting: the user when known, else the IP.
func (i Info) rateKey() string {
	if !i.User.IsAnonymous() {
		return i.User.ID
	}
	return i.Request.IP
}
