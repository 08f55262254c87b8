package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"chatvault-go/internal/service"
)

// 事件类型。
const (
	TypeQuery = "query"
	TypeChunk = "chunk"
	TypeDone  = "done"
	TypeError = "error"
)

// Event 是服务端发往客户端的事件。
type Event struct {
	Type           string `json:"type"`
	QueryID        string `json:"query_id,omitempty"`
	Content        string `json:"content"`
	ConversationID string `json:"conversation_id,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// inboundFrame 是客户端发来的事件。
type inboundFrame struct {
	Type           string           `json:"type"`
	ConversationID string           `json:"conversation_id"`
	Message        string           `json:"message"`
	Entities       []service.Entity `json:"entities"`
}

var (
	errMalformedFrame  = errors.New("malformed event: expected a JSON object")
	errUnsupportedType = errors.New(`unsupported event type: expected "query"`)
	errInvalidField    = errors.New("invalid event field")
)

// jsonKind 用 JSON 的术语描述 Go 类型。
func jsonKind(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "a string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "an integer"
	case reflect.Float32, reflect.Float64:
		return "a number"
	case reflect.Bool:
		return "a boolean"
	case reflect.Slice, reflect.Array:
		return "an array"
	default:
		return "an object"
	}
}

// parseQuery 解析一条入站事件，只有 type 为 "query" 的 JSON 对象才被接受。
func parseQuery(data []byte) (service.QueryRequest, error) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return service.QueryRequest{}, fmt.Errorf("%w: %q must be %s", errInvalidField, typeErr.Field, jsonKind(typeErr.Type))
		}
		return service.QueryRequest{}, errMalformedFrame
	}
	if frame.Type != TypeQuery {
		return service.QueryRequest{}, errUnsupportedType
	}
	return service.QueryRequest{
		ConversationID: frame.ConversationID,
		Message:        frame.Message,
		Entities:       frame.Entities,
	}, nil
}

func chunkEvent(queryID, conversationID, content string) Event {
	return Event{Type: TypeChunk, QueryID: queryID, Content: content, ConversationID: conversationID}
}

func doneEvent(queryID, conversationID, content, createdAt string) Event {
	return Event{Type: TypeDone, QueryID: queryID, Content: content, ConversationID: conversationID, CreatedAt: createdAt}
}

func errorEvent(queryID, content string) Event {
	return Event{Type: TypeError, QueryID: queryID, Content: content}
}

// errorMessage 把错误转为可以发给客户端的文本，内部错误不暴露细节。
func errorMessage(err error) string {
	switch {
	case service.IsValidation(err), errors.Is(err, errMalformedFrame), errors.Is(err, errUnsupportedType),
		errors.Is(err, errInvalidField):
		return err.Error()
	case errors.Is(err, service.ErrNotFound):
		return "conversation not found"
	case errors.Is(err, service.ErrUnauthenticated):
		return "authentication failed"
	case errors.Is(err, service.ErrUpstream):
		return "the model service failed to respond"
	default:
		return "internal error"
	}
}
