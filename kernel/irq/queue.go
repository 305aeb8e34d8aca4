// Package irq implements the lock-free single-producer/single-consumer
// queue used to hand hardware interrupts from the CPU's interrupt gate
// entrypoints to the kernel loop. The producer (an interrupt handler) and
// the consumer (the kernel's run loop) never touch each other's side of
// the ring concurrently, which is what lets this avoid any lock.
package irq

import "sync/atomic"

// Capacity is the number of slots in the ring; it must be a power of two so
// index wrapping can use a mask instead of a modulo.
const Capacity = 256

const indexMask = Capacity - 1

// HardwareInterrupt is the payload enqueued by the CPU's IRQ dispatch path.
type HardwareInterrupt struct {
	IRQ uint8
}

// Queue is a bounded SPSC ring buffer of HardwareInterrupt values. Head and
// tail are monotonically increasing counters (never reduced mod Capacity),
// so all Capacity slots are usable and "full" is simply head-tail==Capacity;
// only the ring index needs masking. The zero value is ready to use.
type Queue struct {
	ring [Capacity]HardwareInterrupt
	head atomic.Uint64 // count of events ever enqueued
	tail atomic.Uint64 // count of events ever dequeued
}

// Enqueue appends event to the ring. It returns false when the ring already
// holds Capacity undrained events; callers on the interrupt-handling path
// treat a full queue as fatal and panic, since there is nowhere else to put
// the event.
func (q *Queue) Enqueue(event HardwareInterrupt) bool {
	head := q.head.Load()
	if head-q.tail.Load() == Capacity {
		return false
	}
	q.ring[head&indexMask] = event
	q.head.Store(head + 1)
	return true
}

// DequeueAll drains every currently queued event in arrival order and calls
// handle for each. It is intended to be called once per kernel loop
// iteration from the single consumer goroutine.
func (q *Queue) DequeueAll(handle func(HardwareInterrupt)) {
	tail := q.tail.Load()
	head := q.head.Load()
	for tail != head {
		handle(q.ring[tail&indexMask])
		tail++
	}
	q.tail.Store(tail)
}

// Empty reports whether the queue currently has no pending events.
func (q *Queue) Empty() bool {
	return q.head.Load() == q.tail.Load()
}
