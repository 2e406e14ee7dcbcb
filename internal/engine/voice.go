// ABOUTME: Voice loopback for Twilio runs of the echo engine
// ABOUTME: Creates input/output audio assets, announces them as deltas and echoes caller audio back

package engine

import (
	"context"
	"time"

	"github.com/2389/appstream-gateway/internal/assets"
	"github.com/2389/appstream-gateway/internal/audio"
	"github.com/2389/appstream-gateway/internal/runner"
)

const finalizeTimeout = 5 * time.Second

// Default voice formats when the factory request carries no override.
const (
	defaultInputFormat  = "pcm16"
	defaultOutputFormat = "g711_ulaw"
)

// voice announces a fresh input and output asset, then copies every input
// chunk to the output asset in the output format until the input is
// finalized or the run ends.
func (r *echoRunner) voice(ctx context.Context, em *emitter) {
	in, out, err := voiceFormats(r.req.ConfigOverride)
	if err != nil {
		em.send(runner.Errors(em.runID, em.requestID, err.Error()))
		return
	}
	tc, err := audio.NewTranscoder(in, out)
	if err != nil {
		em.send(runner.Errors(em.runID, em.requestID, err.Error()))
		return
	}

	input, err := r.createAudio(ctx, "input_audio", in, em.requestID)
	if err != nil {
		r.logger.Error("creating input audio asset", "error", err)
		em.send(runner.Errors(em.runID, em.requestID, "Failed to create audio stream"))
		return
	}
	output, err := r.createAudio(ctx, "output_audio", out, em.requestID)
	if err != nil {
		r.logger.Error("creating output audio asset", "error", err)
		em.send(runner.Errors(em.runID, em.requestID, "Failed to create audio stream"))
		return
	}

	outStream := output.Stream()
	defer func() {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
		defer cancel()
		if err := outStream.Finalize(fctx); err != nil {
			r.logger.Warn("finalizing output audio", "asset", output.Objref(), "error", err)
		}
	}()

	if !em.send(&runner.Response{ID: em.runID, ClientRequestID: em.requestID, Type: runner.ResponseOutputStreamBegin}) {
		return
	}
	if !em.send(runner.StreamChunk(em.runID, em.requestID, map[string]string{
		runner.DeltaInputAudioStream:  "+" + input.Objref(),
		runner.DeltaOutputAudioStream: "+" + output.Objref(),
	})) {
		return
	}

	started := false
	for chunk, err := range input.Stream().Read(ctx, 0) {
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Error("reading input audio", "asset", input.Objref(), "error", err)
			}
			return
		}
		if !started {
			started = true
			delta := map[string]string{runner.DeltaInputAudioStarted: time.Now().UTC().Format(time.RFC3339Nano)}
			if !em.send(runner.StreamChunk(em.runID, em.requestID, delta)) {
				return
			}
		}

		converted, err := tc.Convert(chunk)
		if err != nil {
			r.logger.Warn("converting input audio", "error", err)
			continue
		}
		if len(converted) == 0 {
			continue
		}
		if err := outStream.Append(ctx, converted); err != nil {
			r.logger.Error("appending output audio", "asset", output.Objref(), "error", err)
			return
		}
	}

	em.send(runner.StreamEnd(em.runID, em.requestID))
}

func (r *echoRunner) createAudio(ctx context.Context, name string, enc audio.EncodingInfo, streamSid string) (*assets.Handle, error) {
	return r.engine.assets.Create(ctx, assets.CreateRequest{
		FileName:  name,
		MimeType:  mimeType(enc),
		SessionID: r.req.SessionID,
		Streaming: true,
		Metadata: map[string]string{
			"app_uuid":   r.req.Target,
			"stream_sid": streamSid,
		},
	})
}

func voiceFormats(override map[string]any) (in, out audio.EncodingInfo, err error) {
	name := func(key, def string) string {
		if v, ok := override[key].(string); ok && v != "" {
			return v
		}
		return def
	}
	if in, err = audio.ParseEngineFormat(name("input_audio_format", defaultInputFormat)); err != nil {
		return in, out, err
	}
	out, err = audio.ParseEngineFormat(name("output_audio_format", defaultOutputFormat))
	return in, out, err
}

func mimeType(enc audio.EncodingInfo) string {
	switch enc.Format {
	case audio.EncodingMulaw:
		return "audio/PCMU"
	case audio.EncodingALaw:
		return "audio/PCMA"
	}
	return "audio/L16"
}
