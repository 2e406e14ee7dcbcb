// ABOUTME: Twilio voice session bridging media streams to the engine's audio assets
// ABOUTME: start runs the app; media is transcoded in arrival order and appended to the input asset

package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/2389/appstream-gateway/internal/assets"
	"github.com/2389/appstream-gateway/internal/audio"
	"github.com/2389/appstream-gateway/internal/runner"
)

const (
	twilioEventStart = "start"
	twilioEventMedia = "media"
	twilioEventMark  = "mark"
	twilioEventStop  = "stop"

	mediaQueueSize = 256
)

type twilioFrame struct {
	Event     string          `json:"event"`
	StreamSid string          `json:"streamSid"`
	Start     *twilioStart    `json:"start,omitempty"`
	Media     *twilioMedia    `json:"media,omitempty"`
	Mark      json.RawMessage `json:"mark,omitempty"`
}

type twilioStart struct {
	StreamSid string `json:"streamSid"`
	CallSid   string `json:"callSid"`
}

type twilioMedia struct {
	Payload string `json:"payload"`
}

type twilioMediaFrame struct {
	Event     string      `json:"event"`
	StreamSid string      `json:"streamSid"`
	Media     twilioMedia `json:"media"`
}

type twilioClearFrame struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
}

// TwilioSession carries one phone call. The app run announces its input and
// output audio assets through stream deltas; media frames feed the input
// asset and the output asset is relayed back as media frames.
type TwilioSession struct {
	*Base
	deps   Deps
	info   Info
	source *runner.TwilioSource
	input  *audio.InputBridge

	media   chan string
	dropped atomic.Int64

	mu          sync.Mutex
	runner      runner.Runner
	inputStream *assets.Stream
}

// NewTwilioSession creates a voice session for appUUID called from incomingNumber.
func NewTwilioSession(deps Deps, info Info, appUUID, incomingNumber string) *TwilioSession {
	return &TwilioSession{
		Base: newBase(uuid.New().String(), "twilio", deps.logger()),
		deps: deps,
		info: info,
		source: &runner.TwilioSource{
			AppUUID:        appUUID,
			IncomingNumber: incomingNumber,
			User:           info.User,
		},
		media: make(chan string, mediaQueueSize),
	}
}

// Connect builds the audio bridge and obtains the runner with the voice
// audio formats overridden.
func (s *TwilioSession) Connect(ctx context.Context) error {
	s.logger.Info("twilio signature to verify", "signature", s.info.TwilioSignature)

	input, err := audio.NewInputBridge(s.deps.Voice.Input)
	if err != nil {
		return newError(ExecutionFailure, "connect", err)
	}
	if err := s.deps.Voice.Output.Validate(); err != nil {
		return newError(ExecutionFailure, "connect", err)
	}
	s.input = input

	r, err := s.deps.Factory.GetAppRunner(ctx, &runner.FactoryRequest{
		SessionID: s.id,
		Target:    s.source.AppUUID,
		Source:    s.source,
		ConfigOverride: map[string]any{
			"input_audio_format":  s.deps.Voice.Input.EngineFormatName(),
			"output_audio_format": s.deps.Voice.Output.EngineFormatName(),
		},
	})
	if err != nil {
		return classifyFactoryError(err)
	}
	s.runner = r
	return nil
}

// Accept marks the session live and starts the media worker.
func (s *TwilioSession) Accept(ctx context.Context, conn Conn) {
	s.accept(ctx, conn)
	s.background(s.processMedia)
}

// Receive handles one Twilio media stream message.
func (s *TwilioSession) Receive(msg Message) {
	if msg.Binary || !s.Connected() {
		return
	}
	var f twilioFrame
	if err := json.Unmarshal(msg.Data, &f); err != nil {
		s.logger.Debug("ignoring malformed frame", "error", err)
		return
	}

	switch f.Event {
	case twilioEventStart:
		sid := f.StreamSid
		if f.Start != nil && f.Start.StreamSid != "" {
			sid = f.Start.StreamSid
		}
		s.spawn(twilioEventStart, func(ctx context.Context) {
			if err := s.run(ctx, sid); err != nil {
				s.logger.Error("voice run failed", "stream_sid", sid, "error", err)
			}
		})

	case twilioEventMedia:
		if f.Media == nil || f.Media.Payload == "" {
			return
		}
		select {
		case s.media <- f.Media.Payload:
		default:
			s.drop(s.ctx, "queue_full")
			s.logger.Warn("media queue full, dropping frame")
		}

	case twilioEventStop:
		s.mu.Lock()
		r := s.runner
		s.runner = nil
		s.mu.Unlock()
		stopRunner(s.logger, r)

	case twilioEventMark:
		s.logger.Info("received mark event", "mark", string(f.Mark))

	default:
		s.logger.Debug("ignoring twilio event", "event", f.Event)
	}
}

// Disconnect ends the call and asks the engine to stop the run.
func (s *TwilioSession) Disconnect(code int) {
	if !s.shutdown(code, "") {
		return
	}
	s.mu.Lock()
	r := s.runner
	s.runner = nil
	s.mu.Unlock()
	stopRunner(s.logger, r)
	if n := s.dropped.Load(); n > 0 {
		s.logger.Info("call ended with dropped media", "dropped", n)
	}
}

// run starts the app and watches its deltas for the audio sentinels until
// the response sequence ends.
func (s *TwilioSession) run(ctx context.Context, streamSid string) error {
	s.mu.Lock()
	r := s.runner
	s.mu.Unlock()
	if r == nil {
		return newError(ExecutionFailure, twilioEventStart, runner.ErrAppNotFound)
	}

	ctx, span := tracer.Start(ctx, "session.voice_run")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", s.id),
		attribute.String("twilio.stream_sid", streamSid),
	)

	s.deps.recordRun(ctx, s.info, s.flavor)
	responses, err := r.Run(ctx, &runner.Request{
		ClientRequestID: streamSid,
		SessionID:       s.id,
		Input:           map[string]any{},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return newError(ExecutionFailure, twilioEventStart, err)
	}

	for {
		var (
			resp *runner.Response
			ok   bool
		)
		select {
		case <-ctx.Done():
			return nil
		case resp, ok = <-responses:
			if !ok {
				return nil
			}
		}
		if !s.live(ctx) {
			return nil
		}
		if resp == nil {
			continue
		}

		switch resp.Type {
		case runner.ResponseOutputStreamChunk:
			s.handleDeltas(ctx, streamSid, resp.Deltas())
		case runner.ResponseErrors:
			s.logger.Warn("voice run reported errors", "errors", resp.ErrorMessages())
			return nil
		case runner.ResponseOutputStreamEnd:
			return nil
		}
	}
}

// handleDeltas acts on every sentinel present in one chunk: attach the input
// asset, start relaying the output asset, then clear playback on barge-in.
func (s *TwilioSession) handleDeltas(ctx context.Context, streamSid string, deltas map[string]string) {
	if v, ok := deltas[runner.DeltaInputAudioStream]; ok {
		stream, err := s.resolveStream(ctx, v)
		if err != nil {
			s.logger.Error("resolving input audio asset", "kind", ResolutionFailure.String(), "error", err)
		} else {
			s.mu.Lock()
			s.inputStream = stream
			s.mu.Unlock()
			s.logger.Info("input audio attached", "asset", stream.Ref().String())
		}
	}

	if v, ok := deltas[runner.DeltaOutputAudioStream]; ok {
		objref := strings.TrimPrefix(v, "+")
		s.background(func(ctx context.Context) {
			s.relayOutput(ctx, streamSid, objref)
		})
	}

	if _, ok := deltas[runner.DeltaInputAudioStarted]; ok {
		s.sendJSON(ctx, twilioClearFrame{Event: "clear", StreamSid: streamSid})
	}
}

func (s *TwilioSession) resolveStream(ctx context.Context, delta string) (*assets.Stream, error) {
	if s.deps.Assets == nil {
		return nil, newError(ResolutionFailure, "resolve", assets.ErrNotFound)
	}
	h, err := s.deps.Assets.Resolve(ctx, strings.TrimPrefix(delta, "+"), assets.Owner{
		Username:  s.info.Username(),
		SessionID: s.id,
	})
	if err != nil {
		return nil, err
	}
	return h.Stream(), nil
}

// processMedia converts queued media payloads one at a time so chunks land
// in the input asset in arrival order.
func (s *TwilioSession) processMedia(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-s.media:
			s.appendMedia(ctx, payload)
		}
	}
}

func (s *TwilioSession) appendMedia(ctx context.Context, payload string) {
	s.mu.Lock()
	stream := s.inputStream
	s.mu.Unlock()
	if stream == nil {
		s.drop(ctx, "no_input_stream")
		return
	}

	pcm, err := s.input.Convert(payload)
	if err != nil {
		s.drop(ctx, "transcode")
		s.logger.Error("converting media", "kind", TranscodingFailure.String(), "error", err)
		return
	}
	if len(pcm) == 0 {
		return
	}
	if err := stream.Append(ctx, pcm); err != nil {
		s.logger.Error("appending media", "asset", stream.Ref().String(), "error", err)
	}
}

func (s *TwilioSession) drop(ctx context.Context, reason string) {
	s.dropped.Add(1)
	mediaDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// relayOutput streams the output audio asset to the caller until it ends or
// an empty chunk arrives.
func (s *TwilioSession) relayOutput(ctx context.Context, streamSid, objref string) {
	stream, err := s.resolveStream(ctx, objref)
	if err != nil {
		s.logger.Error("resolving output audio asset", "kind", ResolutionFailure.String(), "error", err)
		return
	}
	out, err := audio.NewOutputBridge(s.deps.Voice.Output)
	if err != nil {
		s.logger.Error("creating output bridge", "error", err)
		return
	}

	for chunk, err := range stream.Read(ctx, 0) {
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error("reading output audio", "asset", stream.Ref().String(), "error", err)
			}
			return
		}
		if len(chunk) == 0 {
			return
		}
		payload, err := out.Convert(chunk)
		if err != nil {
			s.logger.Error("converting output audio", "kind", TranscodingFailure.String(), "error", err)
			continue
		}
		frame := twilioMediaFrame{Event: "media", StreamSid: streamSid, Media: twilioMedia{Payload: payload}}
		if !s.sendJSON(ctx, frame) {
			return
		}
	}
}
