package treehaus

import (
	"slices"
	"sync"
)

// makes a copy of the list on update, so callers can iterate a
// snapshot without holding the lock
type callbackList[T any] struct {
	stateLock sync.Mutex
	nextId    int
	entries   []callbackEntry[T]
}

type callbackEntry[T any] struct {
	callbackId int
	callback   T
}

func (self *callbackList[T]) get() []T {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	callbacks := make([]T, len(self.entries))
	for i, entry := range self.entries {
		callbacks[i] = entry.callback
	}
	return callbacks
}

// returns a function that removes the callback
func (self *callbackList[T]) add(callback T) func() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	callbackId := self.nextId
	self.nextId += 1
	nextEntries := slices.Clone(self.entries)
	nextEntries = append(nextEntries, callbackEntry[T]{
		callbackId: callbackId,
		callback:   callback,
	})
	self.entries = nextEntries

	return func() {
		self.remove(callbackId)
	}
}

func (self *callbackList[T]) remove(callbackId int) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	i := slices.IndexFunc(self.entries, func(entry callbackEntry[T]) bool {
		return entry.callbackId == callbackId
	})
	if i < 0 {
		// not present
		return
	}
	nextEntries := slices.Clone(self.entries)
	nextEntries = slices.Delete(nextEntries, i, i+1)
	self.entries = nextEntries
}
