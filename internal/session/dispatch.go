// ABOUTME: Forwards one run's response sequence to the session connection
// ABOUTME: Stops on terminal responses and abandons silently once the session is gone

package session

import (
	"context"
	"encoding/json"

	"github.com/2389/appstream-gateway/internal/runner"
)

type dispatchMode int

const (
	// streamMode ends a run on errors or output_stream_end.
	streamMode dispatchMode = iota
	// batchMode ends a run on errors or the complete output, which the
	// engine sends after output_stream_end.
	batchMode
)

// dispatch forwards responses in engine order. It returns when the sequence
// ends, a terminal response has been forwarded, or the session stops being
// live; in the last case nothing more is written.
func (b *Base) dispatch(ctx context.Context, requestID json.RawMessage, responses <-chan *runner.Response, mode dispatchMode) {
	for {
		var (
			resp *runner.Response
			ok   bool
		)
		select {
		case <-ctx.Done():
			return
		case resp, ok = <-responses:
			if !ok {
				return
			}
		}
		if resp == nil {
			continue
		}
		if !b.live(ctx) {
			b.logger.Debug("abandoning run", "request_id", string(requestID))
			return
		}

		switch resp.Type {
		case runner.ResponseOutputStreamChunk:
			b.sendJSON(ctx, resp)

		case runner.ResponseErrors:
			b.sendJSON(ctx, errorsFrame{Errors: resp.ErrorMessages(), RequestID: requestID})
			return

		case runner.ResponseOutputStreamEnd:
			if mode == streamMode {
				b.sendJSON(ctx, doneFrame{Event: "done", RequestID: requestID})
				return
			}

		case runner.ResponseOutput:
			if mode == batchMode {
				b.sendJSON(ctx, batchDoneFrame{Event: "done", RequestID: requestID, Data: nonNil(resp.Chunks())})
				return
			}
		}
	}
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
