// ABOUTME: App and Store sessions: one runner per session, one task per inbound event
// ABOUTME: Handles run, create_asset, delete_asset and stop

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/2389/appstream-gateway/internal/assets"
	"github.com/2389/appstream-gateway/internal/runner"
)

// AppSession runs a web app (by uuid) or a store app (by slug). The runner is
// resolved once at connect time and reused by every run.
type AppSession struct {
	*Base
	deps    Deps
	info    Info
	target  string
	preview bool
	source  runner.Source
	runner  runner.Runner
}

// NewAppSession creates a Web session for the app with appUUID.
func NewAppSession(deps Deps, info Info, appUUID string, preview bool) *AppSession {
	id := uuid.New().String()
	return &AppSession{
		Base:    newBase(id, "app", deps.logger()),
		deps:    deps,
		info:    info,
		target:  appUUID,
		preview: preview,
		source: &runner.WebSource{
			RequestMeta: info.Request,
			SessionID:   id,
			AppUUID:     appUUID,
			UserEmail:   info.User.EmailOrEmpty(),
			User:        info.User,
		},
	}
}

// NewStoreSession creates a Store session for the published app slug.
func NewStoreSession(deps Deps, info Info, slug string) *AppSession {
	id := uuid.New().String()
	return &AppSession{
		Base:   newBase(id, "store", deps.logger()),
		deps:   deps,
		info:   info,
		target: slug,
		source: &runner.StoreSource{
			RequestMeta: info.Request,
			Slug:        slug,
			UserEmail:   info.User.EmailOrEmpty(),
			User:        info.User,
		},
	}
}

// Connect checks limits and obtains the session's runner.
func (s *AppSession) Connect(ctx context.Context) error {
	if err := s.deps.admit(ctx, s.info); err != nil {
		return err
	}

	r, err := s.deps.Factory.GetAppRunner(ctx, &runner.FactoryRequest{
		SessionID: s.id,
		Target:    s.target,
		Source:    s.source,
		Preview:   s.preview,
	})
	if err != nil {
		return classifyFactoryError(err)
	}
	s.runner = r
	return nil
}

// Accept marks the session live on conn.
func (s *AppSession) Accept(ctx context.Context, conn Conn) {
	s.accept(ctx, conn)
}

// Receive handles one inbound frame. run and create_asset each get a fresh task.
func (s *AppSession) Receive(msg Message) {
	if msg.Binary || !s.Connected() {
		return
	}
	f, err := ParseFrame(msg.Data)
	if err != nil {
		s.logger.Debug("ignoring malformed frame", "error", err)
		return
	}

	switch f.Event {
	case EventRun:
		s.spawn(f.Event, func(ctx context.Context) {
			s.report(ctx, s.deps.Policies, f, s.run(ctx, f))
		})
	case EventCreateAsset:
		s.spawn(f.Event, func(ctx context.Context) {
			s.report(ctx, s.deps.Policies, f, s.createAsset(ctx, f))
		})
	case EventDeleteAsset:
		s.logger.Debug("delete_asset is not supported", "request_id", f.RequestID())
	case EventStop:
		s.Disconnect(CloseNormal)
	default:
		s.logger.Debug("ignoring unknown event", "event", f.Event)
	}
}

// Disconnect ends the session and asks the engine to stop the run. Repeated
// calls are no-ops.
func (s *AppSession) Disconnect(code int) {
	if s.shutdown(code, "") {
		stopRunner(s.logger, s.runner)
	}
}

func (s *AppSession) run(ctx context.Context, f *Frame) error {
	ctx, span := tracer.Start(ctx, "session.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", s.id),
		attribute.String("session.flavor", s.flavor),
		attribute.String("app.target", s.target),
	)

	req := &runner.Request{
		ClientRequestID: f.RequestID(),
		SessionID:       s.id,
		Input:           f.InputMap(),
	}
	s.deps.recordRun(ctx, s.info, s.flavor)

	responses, err := s.runner.Run(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return newError(ExecutionFailure, EventRun, err)
	}
	s.dispatch(ctx, f.ID, responses, streamMode)
	return nil
}

type createAssetData struct {
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	Streaming bool   `json:"streaming"`
}

func (s *AppSession) createAsset(ctx context.Context, f *Frame) error {
	var data createAssetData
	if err := f.decodeData(&data); err != nil {
		return err
	}
	if s.deps.Assets == nil {
		return &Error{Kind: ExecutionFailure, Op: EventCreateAsset, Msg: "Failed to create asset", Err: errors.New("assets are not configured")}
	}

	h, err := s.deps.Assets.Create(ctx, assets.CreateRequest{
		Category:  assets.CategorySessionFiles,
		FileName:  data.FileName,
		MimeType:  data.MimeType,
		Username:  s.info.Username(),
		SessionID: s.id,
		Streaming: data.Streaming,
		Metadata:  map[string]string{"app_uuid": s.source.ID()},
	})
	if err != nil {
		return &Error{Kind: ExecutionFailure, Op: EventCreateAsset, Msg: "Failed to create asset", Err: err}
	}

	s.sendJSON(ctx, assetFrame{
		Asset:          h.Objref(),
		ReplyTo:        f.ID,
		RequestID:      f.ID,
		AssetRequestID: f.ID,
	})
	return nil
}

// classifyFactoryError maps runner factory failures onto the session taxonomy.
func classifyFactoryError(err error) error {
	switch {
	case errors.Is(err, runner.ErrAppNotFound):
		return newError(ResolutionFailure, "connect", err)
	case errors.Is(err, runner.ErrPermissionDenied):
		return newError(AuthorizationDenied, "connect", err)
	default:
		return newError(ExecutionFailure, "connect", fmt.Errorf("getting app runner: %w", err))
	}
}
