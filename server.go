package treehaus

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/gorilla/websocket"

	"github.com/golang/glog"
)

// http surface: the realtime sync endpoint plus a request/response
// fallback that applies the identical validate-and-replace path

type ServerSettings struct {
	WsHandshakeTimeout time.Duration
	ReadLimit          int64
}

func DefaultServerSettings() *ServerSettings {
	return &ServerSettings{
		WsHandshakeTimeout: 2 * time.Second,
		ReadLimit:          1024 * 1024,
	}
}

type Server struct {
	ctx context.Context

	coordinator *Coordinator
	settings    *ServerSettings

	upgrader *websocket.Upgrader
}

func NewServerWithDefaults(ctx context.Context, coordinator *Coordinator) *Server {
	return NewServer(ctx, coordinator, DefaultServerSettings())
}

func NewServer(ctx context.Context, coordinator *Coordinator, settings *ServerSettings) *Server {
	return &Server{
		ctx:         ctx,
		coordinator: coordinator,
		settings:    settings,
		upgrader: &websocket.Upgrader{
			HandshakeTimeout: settings.WsHandshakeTimeout,
			// no auth; viewers connect from any origin
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (self *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sync", self.handleSync)
	mux.HandleFunc("/items", self.handleItems)
	mux.HandleFunc("/status", self.handleStatus)
	return mux
}

func (self *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	ws, err := self.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Infof("[sv]upgrade error = %s\n", err)
		return
	}
	ws.SetReadLimit(self.settings.ReadLimit)

	connection := self.coordinator.Connect(ws)
	connection.Run()
}

func (self *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		self.readItems(w, r)
	case http.MethodPut, http.MethodPost:
		self.replaceItems(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (self *Server) readItems(w http.ResponseWriter, r *http.Request) {
	document := &Document{
		Items: self.coordinator.Read(),
	}
	responseJson, err := json.Marshal(document)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(responseJson)
}

func (self *Server) replaceItems(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, self.settings.ReadLimit))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var wire struct {
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(body, &wire); err != nil || wire.Items == nil {
		http.Error(w, fmt.Sprintf("%s: missing items", ErrInvalidCollection), http.StatusBadRequest)
		return
	}
	items, err := DecodeItems(wire.Items)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// same validate-and-replace as the realtime path. No origin, so
	// every active connection receives the broadcast.
	if err := self.coordinator.Commit("", items); err != nil {
		http.Error(w, err.Error(), errStatus(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func errStatus(err error) int {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (self *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	type status struct {
		NodeCount int `json:"node_count"`
	}
	responseJson, err := json.Marshal(&status{
		NodeCount: len(self.coordinator.Read()),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(responseJson)
}
