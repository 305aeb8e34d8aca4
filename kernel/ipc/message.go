// Package ipc implements the message type and the bounded multi-producer/
// multi-consumer mailbox threads use to talk to the kernel thread.
package ipc

// MaxPayloadSize is the number of inline bytes a Message can carry.
const MaxPayloadSize = 128

// Message is the unit of IPC. SenderID/ReceiverID identify the threads on
// either end of the exchange; Param1..4 carry small scalar arguments (the
// common case for a syscall request) and Data/Size carry an optional
// inline byte payload for requests that need more than four words.
type Message struct {
	SenderID   uint64
	ReceiverID uint64
	Param1     uint64
	Param2     uint64
	Param3     uint64
	Param4     uint64
	Size       uint64
	Data       [MaxPayloadSize]byte
}
