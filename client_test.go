package treehaus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestReconcileKeepsLocalExpanded(t *testing.T) {
	previous := Collection{
		folder("f1", "Docs", nil, false),
		folder("f2", "Other", nil, true),
	}

	// a broadcast that does not carry expanded for f1 must not clobber
	// the locally collapsed state
	incoming := Collection{
		{Id: "f1", Kind: KindFolder, Title: "Docs"},
		folder("f2", "Other", nil, false),
		file("a", "a.txt", nil),
	}

	merged := Reconcile(previous, incoming)
	assert.Equal(t, 3, len(merged))

	f1, _ := merged.Find("f1")
	assert.Equal(t, false, *f1.Expanded)

	// an incoming expanded value wins over the local one
	f2, _ := merged.Find("f2")
	assert.Equal(t, false, *f2.Expanded)

	a, _ := merged.Find("a")
	assert.Equal(t, true, a.Expanded == nil)
}

func TestReconcileNewFolders(t *testing.T) {
	previous := Collection{}
	incoming := Collection{
		{Id: "f1", Kind: KindFolder, Title: "Docs"},
	}

	// nothing to merge from; the incoming payload stands as is
	merged := Reconcile(previous, incoming)
	f1, _ := merged.Find("f1")
	assert.Equal(t, true, f1.Expanded == nil)
}

func waitFor[T any](t *testing.T, c chan T) T {
	select {
	case value := <-c:
		return value
	case <-time.After(5 * time.Second):
		t.Fatal("timeout")
		panic("unreachable")
	}
}

func waitForItems(t *testing.T, client *Client, expected int) Collection {
	timeout := time.Now().Add(5 * time.Second)
	for {
		items := client.Items()
		if len(items) == expected {
			return items
		}
		if timeout.Before(time.Now()) {
			t.Fatalf("timeout waiting for %d items, have %d", expected, len(items))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClientSync(t *testing.T) {
	server := newTestServer(t)
	collection := testCollection()
	assert.Equal(t, nil, server.store.Replace(collection))

	client := NewClientWithDefaults(context.Background(), server.syncUrl())
	defer client.Close()

	// the initial snapshot lands in the local view
	assert.Equal(t, collection, waitForItems(t, client, len(collection)))
	assert.Equal(t, false, client.Degraded())

	// the client's own mutation applies optimistically, and another
	// viewer receives the broadcast
	observer := server.dial(t)
	assert.Equal(t, EventInitialData, readEnvelope(t, observer).Event)

	assert.Equal(t, nil, client.Move("b", "f1", PositionInside))
	optimistic := client.Items()
	moved, _ := optimistic.Find("b")
	assert.Equal(t, "f1", *moved.ParentId)

	message := readEnvelope(t, observer)
	assert.Equal(t, EventItemsUpdated, message.Event)
	assert.Equal(t, optimistic, message.Items)

	// a rejected mutation comes back as a notice to this client only
	notices := make(chan string, 16)
	client.AddNoticeCallback(func(message string) {
		notices <- message
	})
	assert.Equal(t, nil, client.Update(Collection{
		file("dup", "dup.txt", nil),
		file("dup", "dup.txt", nil),
	}))
	assert.NotEqual(t, "", waitFor(t, notices))
}

func TestClientIdleConnectionStaysHealthy(t *testing.T) {
	// the server keepalives are ping control frames; they must keep an
	// idle connection alive well past the client read timeout
	settings := DefaultCoordinatorSettings()
	settings.PingTimeout = 100 * time.Millisecond
	server := newTestServerWithSettings(t, settings)
	collection := testCollection()
	assert.Equal(t, nil, server.store.Replace(collection))

	clientSettings := DefaultClientSettings()
	clientSettings.ReadTimeout = 500 * time.Millisecond
	clientSettings.ReconnectTimeout = 100 * time.Millisecond
	client := NewClient(context.Background(), server.syncUrl(), clientSettings)
	defer client.Close()

	assert.Equal(t, collection, waitForItems(t, client, len(collection)))

	flaps := make(chan bool, 16)
	client.AddStateCallback(func(degraded bool) {
		if degraded {
			flaps <- true
		}
	})

	// idle across several read timeout periods
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, 0, len(flaps))
	assert.Equal(t, false, client.Degraded())
	assert.Equal(t, collection, client.Items())
}

func TestClientDegraded(t *testing.T) {
	// no server, the client stays degraded and refuses mutations
	// rather than queuing them
	client := NewClientWithDefaults(context.Background(), "ws://127.0.0.1:1/sync")
	defer client.Close()

	assert.Equal(t, true, client.Degraded())
	err := client.Update(Collection{file("a", "a.txt", nil)})
	assert.Equal(t, true, errors.Is(err, ErrTransport))
}
