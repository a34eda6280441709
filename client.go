package treehaus

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/golang/glog"
)

// viewer-side session. The client applies its own mutations to the
// local view immediately, before server confirmation, and merges
// incoming broadcasts with transient local state so that a locally
// collapsed folder is not clobbered by an unrelated remote move.
//
// While the transport is down the client is degraded: the local view
// is read only and stale, Update fails with ErrTransport, and nothing
// is queued for retry. The caller is responsible for telling the user
// that changes are not being saved.

type ClientSettings struct {
	WsHandshakeTimeout time.Duration
	ReconnectTimeout   time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
}

func DefaultClientSettings() *ClientSettings {
	return &ClientSettings{
		WsHandshakeTimeout: 2 * time.Second,
		ReconnectTimeout:   5 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReadTimeout:        15 * time.Second,
	}
}

type ChangeFunction func(items Collection)
type StateFunction func(degraded bool)
type NoticeFunction func(message string)

type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	url      string
	settings *ClientSettings

	stateLock sync.Mutex
	items     Collection
	degraded  bool
	ws        *websocket.Conn

	writeLock sync.Mutex

	changeCallbacks callbackList[ChangeFunction]
	stateCallbacks  callbackList[StateFunction]
	noticeCallbacks callbackList[NoticeFunction]
}

func NewClientWithDefaults(ctx context.Context, url string) *Client {
	return NewClient(ctx, url, DefaultClientSettings())
}

func NewClient(ctx context.Context, url string, settings *ClientSettings) *Client {
	cancelCtx, cancel := context.WithCancel(ctx)
	client := &Client{
		ctx:      cancelCtx,
		cancel:   cancel,
		url:      url,
		settings: settings,
		items:    Collection{},
		degraded: true,
	}
	go client.run()
	return client
}

func (self *Client) AddChangeCallback(callback ChangeFunction) func() {
	return self.changeCallbacks.add(callback)
}

func (self *Client) AddStateCallback(callback StateFunction) func() {
	return self.stateCallbacks.add(callback)
}

func (self *Client) AddNoticeCallback(callback NoticeFunction) func() {
	return self.noticeCallbacks.add(callback)
}

func (self *Client) run() {
	defer self.cancel()

	dialer := &websocket.Dialer{
		HandshakeTimeout: self.settings.WsHandshakeTimeout,
	}

	for {
		ws, _, err := dialer.DialContext(self.ctx, self.url, nil)
		if err != nil {
			glog.Infof("[tc]connect error = %s\n", err)
			select {
			case <-self.ctx.Done():
				return
			case <-time.After(self.settings.ReconnectTimeout):
				continue
			}
		}

		self.setWs(ws)
		self.setDegraded(false)

		// the server's keepalives are ping control frames that never
		// surface from ReadMessage, so they must extend the read
		// deadline here. Reply pong so the server sees the connection
		// alive too.
		ws.SetPingHandler(func(appData string) error {
			ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
			err := ws.WriteControl(
				websocket.PongMessage,
				[]byte(appData),
				time.Now().Add(self.settings.WriteTimeout),
			)
			if err == websocket.ErrCloseSent {
				return nil
			}
			return err
		})

		for {
			ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
			_, data, err := ws.ReadMessage()
			if err != nil {
				glog.V(2).Infof("[tc]<- error = %s\n", err)
				break
			}

			message, err := DecodeMessage(data)
			if err != nil {
				glog.Infof("[tc]<- bad message = %s\n", err)
				continue
			}

			switch message.Event {
			case EventInitialData, EventItemsUpdated:
				self.apply(message.Items)
			case EventError:
				// this client's mutation was rejected
				for _, callback := range self.noticeCallbacks.get() {
					callback(message.Message)
				}
			}
		}

		self.setWs(nil)
		self.setDegraded(true)
		ws.Close()

		select {
		case <-self.ctx.Done():
			return
		case <-time.After(self.settings.ReconnectTimeout):
		}
	}
}

// merge an incoming broadcast with the previous local view, then render
func (self *Client) apply(incoming Collection) {
	self.stateLock.Lock()
	merged := Reconcile(self.items, incoming)
	self.items = merged
	self.stateLock.Unlock()

	for _, callback := range self.changeCallbacks.get() {
		callback(slices.Clone(merged))
	}
}

// Items returns the current local view. While degraded it may be stale.
func (self *Client) Items() Collection {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return slices.Clone(self.items)
}

func (self *Client) Degraded() bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.degraded
}

// Update applies items to the local view immediately, then requests
// the replacement from the server. While degraded the mutation is
// rejected, never queued.
func (self *Client) Update(items Collection) error {
	self.stateLock.Lock()
	self.items = slices.Clone(items)
	ws := self.ws
	degraded := self.degraded
	self.stateLock.Unlock()

	for _, callback := range self.changeCallbacks.get() {
		callback(slices.Clone(items))
	}

	if degraded || ws == nil {
		return fmt.Errorf("%w: not connected", ErrTransport)
	}

	data, err := EncodeMessage(&Message{
		Event: EventUpdateItems,
		Items: items,
	})
	if err != nil {
		return err
	}

	self.writeLock.Lock()
	defer self.writeLock.Unlock()
	ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		self.setDegraded(true)
		return fmt.Errorf("%w: %s", ErrTransport, err)
	}
	return nil
}

// Move runs the move engine against the local view and submits the
// result.
func (self *Client) Move(draggedId string, targetId string, position Position) error {
	next, err := Move(self.Items(), draggedId, targetId, position)
	if err != nil {
		return err
	}
	return self.Update(next)
}

func (self *Client) CreateFolder(title string) (string, error) {
	node := NewFolder(title)
	return node.Id, self.Update(append(self.Items(), node))
}

func (self *Client) CreateFile(title string) (string, error) {
	node := NewFile(title)
	return node.Id, self.Update(append(self.Items(), node))
}

func (self *Client) Rename(id string, title string) error {
	next, err := self.Items().Rename(id, title)
	if err != nil {
		return err
	}
	return self.Update(next)
}

func (self *Client) ToggleExpanded(id string) error {
	next, err := self.Items().ToggleExpanded(id)
	if err != nil {
		return err
	}
	return self.Update(next)
}

func (self *Client) Delete(id string) error {
	next, err := self.Items().Delete(id)
	if err != nil {
		return err
	}
	return self.Update(next)
}

func (self *Client) setWs(ws *websocket.Conn) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.ws = ws
}

func (self *Client) setDegraded(degraded bool) {
	self.stateLock.Lock()
	if self.degraded == degraded {
		self.stateLock.Unlock()
		return
	}
	self.degraded = degraded
	self.stateLock.Unlock()

	for _, callback := range self.stateCallbacks.get() {
		callback(degraded)
	}
}

func (self *Client) Close() {
	self.cancel()
}

// Reconcile merges an incoming broadcast with the previous local view.
// Folders present in both views keep the previous expanded state when
// the incoming payload did not carry one; everything else comes from
// the incoming collection unchanged.
func Reconcile(previous Collection, incoming Collection) Collection {
	merged := slices.Clone(incoming)
	for i := range merged {
		if !merged[i].IsFolder() || merged[i].Expanded != nil {
			continue
		}
		if node, ok := previous.Find(merged[i].Id); ok && node.IsFolder() {
			merged[i].Expanded = node.Expanded
		}
	}
	return merged
}
