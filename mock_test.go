package frameloop

import (
	"errors"
	"fmt"
	"sync"
)

// eventLog is an ordered, concurrency-safe log of collaborator calls.
// A nil *eventLog discards events.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) index(event string) int {
	for i, e := range l.all() {
		if e == event {
			return i
		}
	}
	return -1
}

// fakeFence is a Fence whose completed value is set by the test.
type fakeFence struct {
	log   *eventLog
	index int

	mu        sync.Mutex
	value     uint64
	waiters   map[uint64][]chan struct{}
	notifyErr error
	notifies  int
	released  bool
}

func (f *fakeFence) CompletedValue() uint64 {
	f.log.add("query %d", f.index)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

func (f *fakeFence) NotifyAt(v uint64) (<-chan struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifies++
	if f.notifyErr != nil {
		return nil, f.notifyErr
	}
	ch := make(chan struct{})
	if f.value >= v {
		close(ch)
		return ch, nil
	}
	if f.waiters == nil {
		f.waiters = make(map[uint64][]chan struct{})
	}
	f.waiters[v] = append(f.waiters[v], ch)
	return ch, nil
}

// set moves the completed value to v, notifying satisfied waiters. It may
// also move it backwards to provoke monotonicity errors.
func (f *fakeFence) set(v uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = v
	for at, chs := range f.waiters {
		if at <= v {
			for _, ch := range chs {
				close(ch)
			}
			delete(f.waiters, at)
		}
	}
}

// notifyEarly closes every pending waiter without moving the value.
func (f *fakeFence) notifyEarly() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for at, chs := range f.waiters {
		for _, ch := range chs {
			close(ch)
		}
		delete(f.waiters, at)
	}
}

func (f *fakeFence) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, chs := range f.waiters {
		n += len(chs)
	}
	return n
}

func (f *fakeFence) Release() {
	f.log.add("release fence %d", f.index)
	f.released = true
}

// fakeBuffer records Reset and Encode calls.
type fakeBuffer struct {
	log       *eventLog
	index     int
	resets    int
	encoded   []Command
	resetErr  error
	encodeErr error
	released  bool
}

func (b *fakeBuffer) Reset() error {
	b.log.add("reset %d", b.index)
	b.resets++
	if b.resetErr != nil {
		return b.resetErr
	}
	b.encoded = nil
	return nil
}

func (b *fakeBuffer) Encode(seq *Sequence) error {
	if b.encodeErr != nil {
		return b.encodeErr
	}
	b.log.add("encode %d", b.index)
	b.encoded = append([]Command(nil), seq.Commands()...)
	return nil
}

func (b *fakeBuffer) Release() {
	b.log.add("release buffer %d", b.index)
	b.released = true
}

func newFakes(n int) ([]Fence, []*fakeFence, []CommandBuffer, []*fakeBuffer) {
	fences := make([]Fence, n)
	ff := make([]*fakeFence, n)
	buffers := make([]CommandBuffer, n)
	fb := make([]*fakeBuffer, n)
	for i := range n {
		ff[i] = &fakeFence{index: i}
		fences[i] = ff[i]
		fb[i] = &fakeBuffer{index: i}
		buffers[i] = fb[i]
	}
	return fences, ff, buffers, fb
}

// recordingScene draws a fixed number of triangles.
type recordingScene struct {
	updates []FrameInfo
	draws   int
}

func (s *recordingScene) Update(info FrameInfo) { s.updates = append(s.updates, info) }

func (s *recordingScene) Draw(p *Pass) {
	s.draws++
	p.SetVertexBuffer(0, BufferView{Buffer: "vb", Size: 48})
	p.Draw(3, 1, 0, 0)
}

var errBoom = errors.New("boom")
