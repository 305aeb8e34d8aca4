package ipc

import "sync/atomic"

// cell is one slot of the mailbox ring. sequence lets producers and
// consumers tell, without a lock, whether a slot is free to write, holds an
// undrained message, or is still owned by whoever last touched it — the
// bounded MPMC design from Dmitry Vyukov's 1024cores queue.
type cell struct {
	sequence atomic.Uint64
	data     Message
}

// Mailbox is a bounded multi-producer/multi-consumer queue of Messages.
// Capacity must be a power of two. The design supports many concurrent
// producers and consumers so a future multi-core kernel can add more
// without re-engineering the queue; the single-core kernel only ever runs
// one producer (a syscall handler) and one consumer (the kernel loop) at a
// time, but nothing about the algorithm assumes that.
type Mailbox struct {
	buffer     []cell
	mask       uint64
	enqueuePos atomic.Uint64
	dequeuePos atomic.Uint64
}

// NewMailbox constructs a Mailbox with room for capacity messages. capacity
// must be a power of two greater than or equal to 2; NewMailbox panics
// otherwise, since an invalid capacity is a programming error discovered
// only at construction time, never at runtime under load.
func NewMailbox(capacity int) *Mailbox {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		panic("ipc: mailbox capacity must be a power of two >= 2")
	}

	m := &Mailbox{
		buffer: make([]cell, capacity),
		mask:   uint64(capacity - 1),
	}
	for i := range m.buffer {
		m.buffer[i].sequence.Store(uint64(i))
	}
	return m
}

// Enqueue attempts to add msg to the mailbox, returning false if it is
// full.
func (m *Mailbox) Enqueue(msg Message) bool {
	pos := m.enqueuePos.Load()
	for {
		c := &m.buffer[pos&m.mask]
		switch seq := c.sequence.Load(); {
		case seq == pos:
			if !m.enqueuePos.CompareAndSwap(pos, pos+1) {
				pos = m.enqueuePos.Load()
				continue
			}
			c.data = msg
			c.sequence.Store(pos + 1)
			return true
		case seq < pos:
			return false
		default:
			pos = m.enqueuePos.Load()
		}
	}
}

// Dequeue removes and returns the oldest message in the mailbox, if any.
func (m *Mailbox) Dequeue() (Message, bool) {
	pos := m.dequeuePos.Load()
	for {
		c := &m.buffer[pos&m.mask]
		switch seq := c.sequence.Load(); {
		case seq == pos+1:
			if !m.dequeuePos.CompareAndSwap(pos, pos+1) {
				pos = m.dequeuePos.Load()
				continue
			}
			msg := c.data
			c.sequence.Store(pos + m.mask + 1)
			return msg, true
		case seq < pos+1:
			return Message{}, false
		default:
			pos = m.dequeuePos.Load()
		}
	}
}

// Empty reports whether the mailbox currently holds no undrained messages.
// Since producers and consumers run concurrently this is inherently racy;
// the kernel loop only uses it to decide whether halting is worthwhile, not
// for correctness.
func (m *Mailbox) Empty() bool {
	return m.enqueuePos.Load() == m.dequeuePos.Load()
}

// DequeueAll drains every message currently in the mailbox, in no
// particular cross-producer order beyond each producer's own FIFO order,
// and calls handle for each one. Used by the kernel loop once per
// iteration.
func (m *Mailbox) DequeueAll(handle func(Message)) {
	for {
		msg, ok := m.Dequeue()
		if !ok {
			return
		}
		handle(msg)
	}
}
