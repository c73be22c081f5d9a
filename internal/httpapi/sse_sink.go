package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/llmweaver/gateway/internal/adapter"
)

// sseSink writes pipeline chunks as OpenAI-shape SSE frames directly to
// the client connection: `data: {...}\n\n` frames terminated by
// `data: [DONE]\n\n`.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSESink(w http.ResponseWriter) *sseSink {
	flusher, _ := w.(http.Flusher)
	return &sseSink{w: w, flusher: flusher}
}

func (s *sseSink) WriteChunk(chunk *adapter.ChatCompletionChunk) error {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flush()
	return nil
}

// WriteError emits a single in-band error chunk for mid-stream upstream
// failures (headers are already sent by then, so an HTTP error status is
// no longer possible).
func (s *sseSink) WriteError(message string) error {
	body := struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}{}
	body.Error.Message = message

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *sseSink) Close() error {
	_, err := fmt.Fprint(s.w, "data: [DONE]\n\n")
	s.flush()
	return err
}

func (s *sseSink) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
