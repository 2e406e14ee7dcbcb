// ABOUTME: Asset stream session: binary read/write/finalize of one asset
// ABOUTME: Frames are "<event>\n<payload>"; an unresolved asset closes with a policy violation

package session

import (
	"bytes"
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/2389/appstream-gateway/internal/assets"
)

// Asset stream frame events.
const (
	AssetEventRead  = "read"
	AssetEventWrite = "write"
)

// AssetStreamSession transfers the chunks of one asset. Writes are applied
// in arrival order; each read runs as its own task and tails the asset until
// it is finalized.
type AssetStreamSession struct {
	*Base
	deps   Deps
	info   Info
	objref string
	handle *assets.Handle
}

// NewAssetStreamSession creates a session for the asset category/uuid.
func NewAssetStreamSession(deps Deps, info Info, category, assetUUID string) *AssetStreamSession {
	return &AssetStreamSession{
		Base:   newBase(uuid.New().String(), "asset_stream", deps.logger()),
		deps:   deps,
		info:   info,
		objref: assets.Ref{Category: category, UUID: assetUUID}.String(),
	}
}

// Connect resolves the asset. A failed resolution does not refuse the
// connection; the first frame closes it instead.
func (s *AssetStreamSession) Connect(ctx context.Context) error {
	if s.deps.Assets == nil {
		s.logger.Warn("asset service unavailable", "asset", s.objref)
		return nil
	}
	h, err := s.deps.Assets.Resolve(ctx, s.objref, assets.Owner{Username: s.info.Username()})
	if err != nil {
		s.logger.Warn("asset not resolved", "asset", s.objref, "kind", ResolutionFailure.String(), "error", err)
		return nil
	}
	s.handle = h
	return nil
}

// Accept marks the session live on conn.
func (s *AssetStreamSession) Accept(ctx context.Context, conn Conn) {
	s.accept(ctx, conn)
}

// Receive handles one binary frame. Text frames are ignored.
func (s *AssetStreamSession) Receive(msg Message) {
	if !msg.Binary || len(msg.Data) == 0 || !s.Connected() {
		return
	}
	if s.handle == nil {
		s.Disconnect(ClosePolicyViolation)
		return
	}

	event, payload, _ := bytes.Cut(msg.Data, []byte("\n"))
	stream := s.handle.Stream()

	switch string(event) {
	case AssetEventRead:
		s.spawn(AssetEventRead, func(ctx context.Context) {
			if err := s.read(ctx, stream); err != nil {
				s.fail(ctx, AssetEventRead, err)
			}
		})

	case AssetEventWrite:
		if len(payload) == 0 {
			if err := stream.Finalize(s.ctx); err != nil {
				s.fail(s.ctx, AssetEventWrite, err)
				return
			}
			s.Disconnect(CloseNormal)
			return
		}
		if err := stream.Append(s.ctx, payload); err != nil {
			s.fail(s.ctx, AssetEventWrite, err)
		}

	default:
		s.logger.Debug("ignoring unknown asset event", "event", string(event))
	}
}

// Disconnect ends the session. Active reads stop with it.
func (s *AssetStreamSession) Disconnect(code int) {
	s.shutdown(code, "")
}

func (s *AssetStreamSession) read(ctx context.Context, stream *assets.Stream) error {
	for chunk, err := range stream.Read(ctx, 0) {
		if err != nil {
			if errors.Is(err, context.Canceled) && !s.Connected() {
				return nil
			}
			return err
		}
		if !s.sendBinary(ctx, chunk) {
			return nil
		}
	}
	return nil
}

// fail logs err, sends an empty frame so the client stops waiting and closes
// the connection.
func (s *AssetStreamSession) fail(ctx context.Context, op string, err error) {
	s.logger.Error("asset stream failed", "op", op, "asset", s.objref, "error", err)
	s.sendBinary(ctx, []byte{})
	s.Disconnect(CloseNormal)
}
