package treehaus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/golang/glog"

	"golang.org/x/exp/maps"
)

// The coordinator owns the fan-out of committed collections to every
// live connection. Mutations are processed one at a time on the commit
// loop, so there is a single active writer against the store and two
// racing updates resolve purely by arrival order. The later commit
// wins; last-writer-wins at full-state granularity, not a merge.

type CoordinatorSettings struct {
	SendBufferSize int
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingTimeout    time.Duration
}

func DefaultCoordinatorSettings() *CoordinatorSettings {
	return &CoordinatorSettings{
		SendBufferSize: 8,
		WriteTimeout:   5 * time.Second,
		ReadTimeout:    15 * time.Second,
		PingTimeout:    5 * time.Second,
	}
}

type ConnectionState string

const (
	ConnectionStateConnecting ConnectionState = "connecting"
	ConnectionStateActive     ConnectionState = "active"
	ConnectionStateClosed     ConnectionState = "closed"
)

type commitRequest struct {
	originId string
	items    Collection
	result   chan error
}

type Coordinator struct {
	ctx    context.Context
	cancel context.CancelFunc

	store    Store
	settings *CoordinatorSettings

	commits chan *commitRequest

	stateLock   sync.Mutex
	connections map[string]*Connection
}

func NewCoordinatorWithDefaults(ctx context.Context, store Store) *Coordinator {
	return NewCoordinator(ctx, store, DefaultCoordinatorSettings())
}

func NewCoordinator(ctx context.Context, store Store, settings *CoordinatorSettings) *Coordinator {
	cancelCtx, cancel := context.WithCancel(ctx)
	coordinator := &Coordinator{
		ctx:         cancelCtx,
		cancel:      cancel,
		store:       store,
		settings:    settings,
		commits:     make(chan *commitRequest),
		connections: map[string]*Connection{},
	}
	go coordinator.run()
	return coordinator
}

func (self *Coordinator) run() {
	defer self.cancel()

	for {
		select {
		case <-self.ctx.Done():
			return
		case commit := <-self.commits:
			// validate, persist, broadcast. Runs to completion before
			// the next commit is started.
			err := self.store.Replace(commit.items)
			if err == nil {
				self.broadcast(commit.originId, commit.items)
			} else {
				glog.Infof("[c]commit rejected from %s = %s\n", commit.originId, err)
			}
			commit.result <- err
		}
	}
}

// Commit validates and persists a full replacement collection, then
// fans it out to every active connection except the origin. originId
// "" means the mutation came from the fallback endpoints and everyone
// receives the broadcast.
func (self *Coordinator) Commit(originId string, items Collection) error {
	commit := &commitRequest{
		originId: originId,
		items:    items,
		result:   make(chan error, 1),
	}
	select {
	case <-self.ctx.Done():
		return fmt.Errorf("%w: coordinator closed", ErrTransport)
	case self.commits <- commit:
	}
	select {
	case <-self.ctx.Done():
		return fmt.Errorf("%w: coordinator closed", ErrTransport)
	case err := <-commit.result:
		return err
	}
}

func (self *Coordinator) Read() Collection {
	return self.store.Read()
}

func (self *Coordinator) broadcast(originId string, items Collection) {
	data, err := EncodeMessage(&Message{
		Event: EventItemsUpdated,
		Items: items,
	})
	if err != nil {
		glog.Infof("[c]broadcast encode error = %s\n", err)
		return
	}

	self.stateLock.Lock()
	connections := maps.Values(self.connections)
	self.stateLock.Unlock()

	for _, connection := range connections {
		if connection.connectionId == originId {
			// the origin already holds the post-mutation state
			continue
		}
		connection.deliver(data)
	}
}

// Connect registers a websocket as a new viewer session and sends the
// one-shot initial snapshot. The caller runs the session with Run.
func (self *Coordinator) Connect(ws *websocket.Conn) *Connection {
	connection := &Connection{
		coordinator:  self,
		connectionId: NewId(),
		ws:           ws,
		send:         make(chan []byte, self.settings.SendBufferSize),
		state:        ConnectionStateConnecting,
	}

	self.stateLock.Lock()
	self.connections[connection.connectionId] = connection
	self.stateLock.Unlock()

	snapshot, err := EncodeMessage(&Message{
		Event: EventInitialData,
		Items: self.store.Read(),
	})
	if err == nil {
		connection.deliver(snapshot)
	} else {
		glog.Infof("[c]snapshot encode error = %s\n", err)
	}
	connection.setState(ConnectionStateActive)
	glog.V(2).Infof("[c]connect %s\n", connection.connectionId)
	return connection
}

func (self *Coordinator) disconnect(connection *Connection) {
	self.stateLock.Lock()
	delete(self.connections, connection.connectionId)
	self.stateLock.Unlock()
	glog.V(2).Infof("[c]disconnect %s\n", connection.connectionId)
}

func (self *Coordinator) Close() {
	self.cancel()
}

// one viewer session over a websocket
type Connection struct {
	coordinator  *Coordinator
	connectionId string
	ws           *websocket.Conn
	send         chan []byte

	stateLock sync.Mutex
	state     ConnectionState
}

func (self *Connection) ConnectionId() string {
	return self.connectionId
}

func (self *Connection) State() ConnectionState {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.state
}

func (self *Connection) setState(state ConnectionState) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.state = state
}

// queue a message for the writer. A connection that cannot keep up is
// skipped; the next broadcast reconciles it.
func (self *Connection) deliver(data []byte) {
	if self.State() == ConnectionStateClosed {
		return
	}
	select {
	case self.send <- data:
	default:
		glog.Infof("[cs]drop %s->\n", self.connectionId)
	}
}

// Run services the session until the viewer disconnects or the
// transport fails. A disconnect deregisters the connection; no action
// is taken on the shared collection.
func (self *Connection) Run() {
	settings := self.coordinator.settings

	handleCtx, handleCancel := context.WithCancel(self.coordinator.ctx)
	defer handleCancel()

	defer func() {
		self.setState(ConnectionStateClosed)
		self.coordinator.disconnect(self)
		self.ws.Close()
	}()

	go func() {
		defer handleCancel()

		for {
			select {
			case <-handleCtx.Done():
				return
			case message, ok := <-self.send:
				if !ok {
					return
				}
				self.ws.SetWriteDeadline(time.Now().Add(settings.WriteTimeout))
				if err := self.ws.WriteMessage(websocket.TextMessage, message); err != nil {
					glog.Infof("[cs]%s-> error = %s\n", self.connectionId, err)
					return
				}
				glog.V(2).Infof("[cs]%s->\n", self.connectionId)
			case <-time.After(settings.PingTimeout):
				self.ws.SetWriteDeadline(time.Now().Add(settings.WriteTimeout))
				if err := self.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	self.ws.SetPongHandler(func(string) error {
		self.ws.SetReadDeadline(time.Now().Add(settings.ReadTimeout))
		return nil
	})

	for {
		select {
		case <-handleCtx.Done():
			return
		default:
		}

		self.ws.SetReadDeadline(time.Now().Add(settings.ReadTimeout))
		_, data, err := self.ws.ReadMessage()
		if err != nil {
			glog.V(2).Infof("[cr]%s<- error = %s\n", self.connectionId, err)
			return
		}

		message, err := DecodeMessage(data)
		if err != nil {
			self.sendError(err)
			continue
		}

		switch message.Event {
		case EventUpdateItems:
			if err := self.coordinator.Commit(self.connectionId, message.Items); err != nil {
				self.sendError(err)
			}
		default:
			glog.V(2).Infof("[cr]other=%s %s<-\n", message.Event, self.connectionId)
		}
	}
}

// a rejection notice goes back to the requester only
func (self *Connection) sendError(err error) {
	data, encodeErr := EncodeMessage(&Message{
		Event:   EventError,
		Message: err.Error(),
	})
	if encodeErr != nil {
		return
	}
	self.deliver(data)
}
