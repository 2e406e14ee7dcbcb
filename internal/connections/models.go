// ABOUTME: Connection model, statuses and activation event variants
// ABOUTME: Converts between the wire/actor Connection and the stored record

package connections

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/2389/appstream-gateway/internal/store"
)

// Status is the lifecycle state of a connection
type Status string

const (
	StatusCreated    Status = "Created"
	StatusConnecting Status = "Connecting"
	StatusActive     Status = "Active"
	StatusFailed     Status = "Failed"
)

// BaseType is the family of credential a connection holds
type BaseType string

const (
	BaseTypeBrowserLogin BaseType = "browser_login"
	BaseTypeOAuth2       BaseType = "oauth2"
	BaseTypeCredentials  BaseType = "credentials"
)

// Connection is a user's link to a third-party service.
type Connection struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	BaseType      BaseType       `json:"base_connection_type"`
	TypeSlug      string         `json:"connection_type_slug"`
	ProviderSlug  string         `json:"provider_slug"`
	Status        Status         `json:"status"`
	Configuration map[string]any `json:"configuration"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Clone returns a copy whose configuration map can be modified independently.
func (c *Connection) Clone() *Connection {
	out := *c
	out.Configuration = make(map[string]any, len(c.Configuration))
	for k, v := range c.Configuration {
		out.Configuration[k] = v
	}
	return &out
}

// ConfigString returns a string configuration value, or "" if absent.
func (c *Connection) ConfigString(key string) string {
	v, _ := c.Configuration[key].(string)
	return v
}

// FromRecord decodes a stored connection.
func FromRecord(rec *store.Connection) (*Connection, error) {
	conn := &Connection{
		ID:           rec.ID,
		Name:         rec.Name,
		Description:  rec.Description,
		BaseType:     BaseType(rec.BaseType),
		TypeSlug:     rec.TypeSlug,
		ProviderSlug: rec.ProviderSlug,
		Status:       Status(rec.Status),
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
	if len(rec.Configuration) > 0 {
		if err := json.Unmarshal(rec.Configuration, &conn.Configuration); err != nil {
			return nil, fmt.Errorf("decoding configuration for %s: %w", rec.ID, err)
		}
	}
	if conn.Configuration == nil {
		conn.Configuration = map[string]any{}
	}
	return conn, nil
}

// Record encodes the connection for storage under userID.
func (c *Connection) Record(userID string) (*store.Connection, error) {
	var raw []byte
	if len(c.Configuration) > 0 {
		var err error
		raw, err = json.Marshal(c.Configuration)
		if err != nil {
			return nil, fmt.Errorf("encoding configuration for %s: %w", c.ID, err)
		}
	}
	status := c.Status
	if status == "" {
		status = StatusCreated
	}
	return &store.Connection{
		ID:            c.ID,
		UserID:        userID,
		Name:          c.Name,
		Description:   c.Description,
		BaseType:      string(c.BaseType),
		TypeSlug:      c.TypeSlug,
		ProviderSlug:  c.ProviderSlug,
		Status:        string(status),
		Configuration: raw,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}, nil
}

// Event is one item produced by an activation. It is one of *Completed,
// *Output or *Update.
type Event interface {
	isActivationEvent()
}

// Completed carries the finished connection. It is terminal: Active means the
// activation succeeded, anything else that it failed.
type Completed struct {
	Connection *Connection
}

// Output is intermediate data the client should show, such as an
// authorization URL to open.
type Output struct {
	Data map[string]any
}

// Update is a non-terminal notice: Connection, when set, should be committed;
// Error, when set, should be shown.
type Update struct {
	Connection *Connection
	Error      string
}

func (*Completed) isActivationEvent() {}
func (*Output) isActivationEvent()    {}
func (*Update) isActivationEvent()    {}
