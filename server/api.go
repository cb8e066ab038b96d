package server

import (
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/mostlygeek/microevent/config"
	"github.com/mostlygeek/microevent/event"
)

const cborContentType = "application/cbor"

// decode CBOR maps the same way JSON ones are, so they can be re-encoded
var cborDecMode, _ = cbor.DecOptions{
	DefaultMapType: reflect.TypeOf(map[string]any(nil)),
}.DecMode()

// decodeArgs turns a request body into trigger arguments. An array is
// spread, any other value is a single argument. JSON integers stay exact.
func decodeArgs(contentType string, body []byte) ([]any, error) {
	if len(body) == 0 {
		return nil, nil
	}

	if strings.HasPrefix(contentType, cborContentType) {
		var v any
		if err := cborDecMode.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("invalid cbor body: %w", err)
		}
		if args, ok := v.([]any); ok {
			return args, nil
		}
		return []any{v}, nil
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid json body")
	}

	result := gjson.ParseBytes(body)
	if !result.IsArray() {
		return []any{config.JSONValue(result)}, nil
	}

	items := result.Array()
	args := make([]any, 0, len(items))
	for _, item := range items {
		args = append(args, config.JSONValue(item))
	}
	return args, nil
}

func (s *Server) emitHandler(c *gin.Context) {
	types := strings.Join(strings.Fields(c.Param("types")), " ")
	if types == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no event type"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	args, err := decodeArgs(c.ContentType(), body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := uuid.NewString()
	listeners := s.hub.ListenerCount(types)
	s.hub.Trigger(types, args...)
	s.logger.Debugf("emit %s: types=%q args=%d listeners=%d", id, types, len(args), listeners)

	c.JSON(http.StatusOK, gin.H{
		"id":        id,
		"msg":       "ok",
		"listeners": listeners,
	})
}

func (s *Server) listListenersHandler(c *gin.Context) {
	counts := make(map[string]int)
	for _, typ := range s.hub.Types() {
		counts[typ] = s.hub.ListenerCount(typ)
	}
	c.JSON(http.StatusOK, counts)
}

type sseMessage struct {
	typ  string
	data []byte
}

// sseClient is bound to the hub for the lifetime of one stream
type sseClient struct {
	ch chan sseMessage
}

// eventPayload encodes an event as {"type": ..., "args": [...]}
func eventPayload(ev *event.Event, args []any) ([]byte, error) {
	if args == nil {
		args = []any{}
	}

	payload, err := sjson.SetBytes([]byte(`{}`), "type", ev.Type)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(payload, "args", args)
}

func (c *sseClient) HandleEvent(ev *event.Event, args ...any) {
	payload, err := eventPayload(ev, args)
	if err != nil {
		payload, _ = sjson.SetBytes([]byte(`{}`), "type", ev.Type)
		payload, _ = sjson.SetBytes(payload, "error", err.Error())
	}

	select {
	case c.ch <- sseMessage{typ: ev.Type, data: payload}:
	default:
		// If client buffer is full, skip
	}
}

// stream the events of the requested types as SSE
func (s *Server) streamEventsHandler(c *gin.Context) {
	types := strings.Join(strings.Fields(c.Query("types")), " ")
	if types == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "types query parameter is required"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Content-Type-Options", "nosniff")
	// prevent nginx from buffering streamed events
	c.Header("X-Accel-Buffering", "no")

	client := &sseClient{ch: make(chan sseMessage, s.sseBuffer)}
	s.hub.Bind(types, client)
	defer s.hub.Unbind(types, client)

	s.logger.Debugf("sse client subscribed to %q", types)
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	notify := c.Request.Context().Done()
	for {
		select {
		case <-notify:
			return
		case <-s.shutdownCtx.Done():
			return
		case msg := <-client.ch:
			c.Render(-1, sse.Event{
				Id:    uuid.NewString(),
				Event: msg.typ,
				Data:  string(msg.data),
			})
			c.Writer.Flush()
		}
	}
}
