/*
Package clist provides a goroutine-safe linked-list. The list can be traversed
concurrently by any number of goroutines, and elements expose wait channels
that fire when a next or previous element becomes available. Removed CElements
cannot be added back.
*/
package clist

import (
	"fmt"
	"sync"
)

// MaxLength is the max allowed number of elements a linked list is allowed to
// contain. If more elements are pushed to the list it will panic.
const MaxLength = int(^uint(0) >> 1)

// CElement is an element of a linked-list. Traversal from a CElement is
// goroutine-safe.
//
// The consumer pattern is to hold on to an element and call NextWaitChan to
// block until a successor exists, re-checking removal after every wake-up.
type CElement struct {
	mtx        sync.RWMutex
	prev       *CElement
	prevWaitCh chan struct{}
	next       *CElement
	nextWaitCh chan struct{}
	removed    bool

	Value interface{} // immutable
}

// NextWaitChan returns a channel that is closed once Next becomes non-nil or
// the element is removed.
func (e *CElement) NextWaitChan() <-chan struct{} {
	e.mtx.RLock()
	defer e.mtx.RUnlock()
	return e.nextWaitCh
}

// PrevWaitChan returns a channel that is closed once Prev becomes non-nil or
// the element is removed.
func (e *CElement) PrevWaitChan() <-chan struct{} {
	e.mtx.RLock()
	defer e.mtx.RUnlock()
	return e.prevWaitCh
}

// Next returns the successor element, or nil. It is safe to call
// concurrently with list mutation.
func (e *CElement) Next() *CElement {
	e.mtx.RLock()
	defer e.mtx.RUnlock()
	return e.next
}

// Prev returns the predecessor element, or nil.
func (e *CElement) Prev() *CElement {
	e.mtx.RLock()
	defer e.mtx.RUnlock()
	return e.prev
}

// Removed reports whether the element has been removed from its list.
func (e *CElement) Removed() bool {
	e.mtx.RLock()
	defer e.mtx.RUnlock()
	return e.removed
}

// DetachNext clears the forward pointer so removed elements can be garbage
// collected. Panics if the element has not been removed.
func (e *CElement) DetachNext() {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if !e.removed {
		panic("DetachNext() must be called after Remove(e)")
	}
	e.next = nil
}

// DetachPrev clears the backward pointer so removed elements can be garbage
// collected. Panics if the element has not been removed.
func (e *CElement) DetachPrev() {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if !e.removed {
		panic("DetachPrev() must be called after Remove(e)")
	}
	e.prev = nil
}

func (e *CElement) setNext(newNext *CElement) {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	oldNext := e.next
	e.next = newNext
	if oldNext != nil && newNext == nil {
		// The wait channel has fired (closed) already; a future successor
		// needs a fresh channel to wait on.
		e.nextWaitCh = make(chan struct{})
	}
	if oldNext == nil && newNext != nil {
		close(e.nextWaitCh)
	}
}

func (e *CElement) setPrev(newPrev *CElement) {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	oldPrev := e.prev
	e.prev = newPrev
	if oldPrev != nil && newPrev == nil {
		e.prevWaitCh = make(chan struct{})
	}
	if oldPrev == nil && newPrev != nil {
		close(e.prevWaitCh)
	}
}

func (e *CElement) setRemoved() {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	e.removed = true

	// Unblock anyone waiting on a successor or predecessor that will never
	// arrive.
	if e.prev == nil {
		close(e.prevWaitCh)
	}
	if e.next == nil {
		close(e.nextWaitCh)
	}
}

//--------------------------------------------------------------------------------

// CList represents a linked list. The zero value for CList is an empty list
// ready to use. Operations are goroutine-safe.
type CList struct {
	mtx    sync.RWMutex
	waitCh chan struct{}
	head   *CElement
	tail   *CElement
	len    int
	maxLen int
}

// New returns a new CList with no length limit.
func New() *CList { return newWithMax(MaxLength) }

// NewWithMax returns a new CList which will panic if the number of elements
// exceeds maxLength.
func NewWithMax(maxLength int) *CList { return newWithMax(maxLength) }

func newWithMax(maxLength int) *CList {
	return &CList{
		maxLen: maxLength,
		waitCh: make(chan struct{}),
	}
}

// Len returns the current number of elements in the list.
func (l *CList) Len() int {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.len
}

// Front returns the first element of the list, or nil if empty.
func (l *CList) Front() *CElement {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.head
}

// Back returns the last element of the list, or nil if empty.
func (l *CList) Back() *CElement {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.tail
}

// WaitChan can be used to wait until Front or Back becomes non-nil. Once it
// does, the channel is closed.
func (l *CList) WaitChan() <-chan struct{} {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.waitCh
}

// PushBack appends the value to the end of the list and returns its element.
// Panics if the configured maximum length would be exceeded.
func (l *CList) PushBack(v interface{}) *CElement {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	e := &CElement{
		prevWaitCh: make(chan struct{}),
		nextWaitCh: make(chan struct{}),
		Value:      v,
	}

	if l.len == 0 {
		// Release all waiters on the formerly empty list.
		close(l.waitCh)
	}
	if l.len >= l.maxLen {
		panic(fmt.Sprintf("clist: maximum length list reached %d", l.maxLen))
	}
	l.len++

	if l.tail == nil {
		l.head = e
		l.tail = e
	} else {
		e.setPrev(l.tail)
		l.tail.setNext(e)
		l.tail = e
	}

	return e
}

// Remove unlinks e from the list and returns its value. The element's wait
// channels fire so blocked consumers re-check their position. The caller is
// responsible for detaching pointers if the element is retained.
func (l *CList) Remove(e *CElement) interface{} {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	prev := e.Prev()
	next := e.Next()

	if l.head == nil || l.tail == nil {
		panic("Remove(e) on empty CList")
	}
	if prev == nil && l.head != e {
		panic("Remove(e) with false head")
	}
	if next == nil && l.tail != e {
		panic("Remove(e) with false tail")
	}

	if l.len == 1 {
		// Replace the fired wait channel so future waiters block again.
		l.waitCh = make(chan struct{})
	}
	l.len--

	if prev == nil {
		l.head = next
	} else {
		prev.setNext(next)
	}
	if next == nil {
		l.tail = prev
	} else {
		next.setPrev(prev)
	}

	e.setRemoved()

	return e.Value
}
