// ABOUTME: Asset service: resolves objrefs to handles and creates new assets
// ABOUTME: Owns the shared chunk broadcaster so every stream of an asset sees the same events

package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/2389/appstream-gateway/internal/store"
)

// CategorySessionFiles is the category for files created inside a session.
const CategorySessionFiles = "sessionfiles"

// DefaultMimeType is used when a create request names no mime type.
const DefaultMimeType = "application/octet-stream"

var (
	// ErrNotFound is returned when the referenced asset does not exist
	ErrNotFound = errors.New("asset not found")

	// ErrAccessDenied is returned when the caller does not own the asset
	ErrAccessDenied = errors.New("asset access denied")
)

// Owner identifies who is asking for an asset. An asset is visible to the
// owner whose Username matches it, to the session it was created in, and to
// anyone when it records neither.
type Owner struct {
	Username  string
	SessionID string
}

// Handle is a resolved asset.
type Handle struct {
	Ref   Ref
	Asset *store.Asset

	svc *Service
}

// Objref returns the serialized reference for the asset.
func (h *Handle) Objref() string {
	return h.Ref.String()
}

// Stream opens the asset for chunked read and write.
func (h *Handle) Stream() *Stream {
	return h.svc.stream(h.Ref)
}

// CreateRequest describes a new asset.
type CreateRequest struct {
	Category  string // defaults to CategorySessionFiles
	FileName  string // defaults to a random uuid
	MimeType  string // defaults to DefaultMimeType
	RefID     string // owning app uuid or session id
	Username  string
	SessionID string
	Streaming bool
	Metadata  map[string]string
}

// Service resolves and creates assets.
type Service struct {
	store        store.AssetStore
	hub          *Broadcaster
	logger       *slog.Logger
	pollInterval time.Duration
}

// NewService creates an asset service on top of st. Pass nil logger for default.
func NewService(st store.AssetStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:        st,
		hub:          NewBroadcaster(logger),
		logger:       logger.With("component", "assets"),
		pollInterval: DefaultPollInterval,
	}
}

// SetPollInterval changes how often tailing readers re-check the store
// without a broadcast. Non-positive values are ignored.
func (s *Service) SetPollInterval(d time.Duration) {
	if d > 0 {
		s.pollInterval = d
	}
}

// Broadcaster exposes the chunk broadcaster shared by this service's streams.
func (s *Service) Broadcaster() *Broadcaster {
	return s.hub
}

// Close shuts down the broadcaster. Active reads fall back to polling.
func (s *Service) Close() {
	s.hub.Close()
}

// Resolve looks up objref and checks that owner may access it.
func (s *Service) Resolve(ctx context.Context, objref string, owner Owner) (*Handle, error) {
	ref, err := ParseRef(objref)
	if err != nil {
		return nil, err
	}

	asset, err := s.store.GetAsset(ctx, ref.Category, ref.UUID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("resolving %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", ref, err)
	}

	if !canAccess(asset, owner) {
		s.logger.Warn("asset access denied",
			"asset", ref.String(),
			"username", owner.Username,
			"session_id", owner.SessionID)
		return nil, fmt.Errorf("resolving %s: %w", ref, ErrAccessDenied)
	}

	return &Handle{Ref: ref, Asset: asset, svc: s}, nil
}

// Create stores a new, empty asset and returns its handle.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Handle, error) {
	category := req.Category
	if category == "" {
		category = CategorySessionFiles
	}
	fileName := req.FileName
	if fileName == "" {
		fileName = uuid.New().String()
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = DefaultMimeType
	}

	metadata := maps.Clone(req.Metadata)
	if req.SessionID != "" {
		if metadata == nil {
			metadata = make(map[string]string)
		}
		metadata["session_id"] = req.SessionID
	}

	refID := req.RefID
	if refID == "" {
		refID = req.SessionID
	}

	asset := &store.Asset{
		Category:  category,
		UUID:      uuid.New().String(),
		RefID:     refID,
		Username:  req.Username,
		FileName:  fileName,
		MimeType:  mimeType,
		Streaming: req.Streaming,
		Metadata:  metadata,
	}
	if err := s.store.CreateAsset(ctx, asset); err != nil {
		return nil, fmt.Errorf("creating asset: %w", err)
	}

	ref := Ref{Category: asset.Category, UUID: asset.UUID}
	s.logger.Info("asset created",
		"asset", ref.String(),
		"file_name", fileName,
		"mime_type", mimeType,
		"streaming", req.Streaming)

	return &Handle{Ref: ref, Asset: asset, svc: s}, nil
}

func (s *Service) stream(ref Ref) *Stream {
	return &Stream{
		ref:          ref,
		store:        s.store,
		hub:          s.hub,
		logger:       s.logger,
		pollInterval: s.pollInterval,
	}
}

func canAccess(asset *store.Asset, owner Owner) bool {
	if asset.Username == "" && asset.RefID == "" {
		return true
	}
	if asset.Username != "" && asset.Username == owner.Username {
		return true
	}
	if owner.SessionID != "" {
		if asset.RefID == owner.SessionID || asset.Metadata["session_id"] == owner.SessionID {
			return true
		}
	}
	return false
}
