package treehaus

import (
	"github.com/goccy/go-json"
)

// wire protocol, one JSON envelope per websocket text message

const (
	// server -> client, once, immediately after connect
	EventInitialData = "initialData"
	// client -> server, request to replace the whole collection
	EventUpdateItems = "updateItems"
	// server -> client, broadcast of a newly committed collection
	EventItemsUpdated = "itemsUpdated"
	// server -> client, mutation rejected, sent only to the requester
	EventError = "error"
)

type Message struct {
	Event   string     `json:"event"`
	Items   Collection `json:"items"`
	Message string     `json:"message,omitempty"`
}

func EncodeMessage(message *Message) ([]byte, error) {
	return json.Marshal(message)
}

// inbound payloads are duck typed. Decode into a loose shape first and
// check every field before anything reaches the invariant logic.
type wireNode struct {
	Id       *string `json:"id"`
	Kind     *string `json:"kind"`
	Title    *string `json:"title"`
	ParentId *string `json:"parentId"`
	Expanded *bool   `json:"expanded"`
}

type wireMessage struct {
	Event   *string    `json:"event"`
	Items   []wireNode `json:"items"`
	Message string     `json:"message"`
}

func DecodeMessage(data []byte) (*Message, error) {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, errInvalidCollection("malformed message: %s", err)
	}
	if wire.Event == nil {
		return nil, errInvalidCollection("missing event")
	}
	message := &Message{
		Event:   *wire.Event,
		Message: wire.Message,
	}
	if wire.Items != nil {
		items, err := decodeItems(wire.Items)
		if err != nil {
			return nil, err
		}
		message.Items = items
	} else if message.Event == EventUpdateItems {
		// a replace request must carry the collection. An explicit
		// empty array is a legitimate clear-all; an absent one is a
		// malformed payload, not a request to wipe the document.
		return nil, errInvalidCollection("missing items")
	}
	return message, nil
}

// DecodeItems parses and shape checks a bare `[...]` node array, as
// used by the request/response fallback endpoints.
func DecodeItems(data []byte) (Collection, error) {
	var wire []wireNode
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, errInvalidCollection("malformed items: %s", err)
	}
	if wire == nil {
		// a JSON null is not a collection
		return nil, errInvalidCollection("missing items")
	}
	return decodeItems(wire)
}

func decodeItems(wire []wireNode) (Collection, error) {
	items := Collection{}
	for i, node := range wire {
		if node.Id == nil || *node.Id == "" {
			return nil, errInvalidCollection("item %d missing id", i)
		}
		if node.Kind == nil {
			return nil, errInvalidCollection("item %d missing kind", i)
		}
		kind := Kind(*node.Kind)
		switch kind {
		case KindFile, KindFolder:
		default:
			return nil, errInvalidCollection("item %d unknown kind %q", i, *node.Kind)
		}
		if node.Title == nil || *node.Title == "" {
			return nil, errInvalidCollection("item %d missing title", i)
		}
		if kind == KindFile && node.Expanded != nil {
			return nil, errInvalidCollection("item %d expanded set on file", i)
		}
		items = append(items, Node{
			Id:       *node.Id,
			Kind:     kind,
			Title:    *node.Title,
			ParentId: node.ParentId,
			Expanded: node.Expanded,
		})
	}
	return items, nil
}
