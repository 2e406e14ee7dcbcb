// ABOUTME: Response taxonomy emitted by the app execution engine
// ABOUTME: Tagged variants for stream chunks, complete output, errors, and stream end

package runner

// ResponseType tags each Response produced by a run.
type ResponseType string

const (
	ResponseErrors            ResponseType = "errors"
	ResponseOutput            ResponseType = "output"
	ResponseOutputStreamChunk ResponseType = "output_stream_chunk"
	ResponseOutputStreamBegin ResponseType = "output_stream_begin"
	ResponseOutputStreamEnd   ResponseType = "output_stream_end"
)

// Delta keys a voice run uses to hand its audio assets to the session. The
// values are objrefs with a leading "+".
const (
	DeltaInputAudioStream  = "agent_input_audio_stream"
	DeltaOutputAudioStream = "agent_output_audio_stream__0"
	DeltaInputAudioStarted = "agent_input_audio_stream_started_at"
)

// ResponseError is a single failure reported by the engine.
type ResponseError struct {
	Code    *int   `json:"code,omitempty"`
	Message string `json:"message"`
}

// ResponseData carries the payload of a Response. Which fields are set depends
// on the Response type: Errors for ResponseErrors, Output/Chunks for
// ResponseOutput, Deltas/Chunk for ResponseOutputStreamChunk.
type ResponseData struct {
	Errors []ResponseError   `json:"errors,omitempty"`
	Output map[string]string `json:"output,omitempty"`
	Chunks map[string]any    `json:"chunks,omitempty"`
	Deltas map[string]string `json:"deltas,omitempty"`
	Chunk  map[string]any    `json:"chunk,omitempty"`
}

// Response is one item of the lazy sequence returned by Runner.Run.
type Response struct {
	ID              string        `json:"id"`
	ClientRequestID string        `json:"client_request_id"`
	Type            ResponseType  `json:"type"`
	Data            *ResponseData `json:"data,omitempty"`
}

// IsTerminal reports whether no further responses follow this one for the request.
func (r *Response) IsTerminal() bool {
	return r.Type == ResponseErrors || r.Type == ResponseOutputStreamEnd
}

// ErrorMessages flattens the errors payload into plain messages.
func (r *Response) ErrorMessages() []string {
	if r.Data == nil {
		return []string{}
	}
	msgs := make([]string, 0, len(r.Data.Errors))
	for _, e := range r.Data.Errors {
		msgs = append(msgs, e.Message)
	}
	return msgs
}

// Deltas returns the stream chunk deltas, or nil when the response carries none.
func (r *Response) Deltas() map[string]string {
	if r.Data == nil {
		return nil
	}
	return r.Data.Deltas
}

// Chunks returns the stitched structured output of a complete response.
func (r *Response) Chunks() map[string]any {
	if r.Data == nil {
		return nil
	}
	return r.Data.Chunks
}

// StreamChunk builds an output_stream_chunk response.
func StreamChunk(id, clientRequestID string, deltas map[string]string) *Response {
	return &Response{
		ID:              id,
		ClientRequestID: clientRequestID,
		Type:            ResponseOutputStreamChunk,
		Data:            &ResponseData{Deltas: deltas},
	}
}

// StreamEnd builds an output_stream_end response.
func StreamEnd(id, clientRequestID string) *Response {
	return &Response{ID: id, ClientRequestID: clientRequestID, Type: ResponseOutputStreamEnd}
}

// Errors builds an errors response from plain messages.
func Errors(id, clientRequestID string, messages ...string) *Response {
	errs := make([]ResponseError, len(messages))
	for i, m := range messages {
		errs[i] = ResponseError{Message: m}
	}
	return &Response{
		ID:              id,
		ClientRequestID: clientRequestID,
		Type:            ResponseErrors,
		Data:            &ResponseData{Errors: errs},
	}
}

// Output builds a complete (non-streaming) output response.
func Output(id, clientRequestID string, output map[string]string, chunks map[string]any) *Response {
	return &Response{
		ID:              id,
		ClientRequestID: clientRequestID,
		Type:            ResponseOutput,
		Data:            &ResponseData{Output: output, Chunks: chunks},
	}
}
