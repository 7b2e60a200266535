package reactor

import (
	"sync/atomic"

	"github.com/joeycumines/go-reactor/result"
)

// Token is a process-unique opaque handle minted by a Manager for each
// registration; it addresses a specific watch for Modify/Remove.
type Token uint64

var tokenCounter atomic.Uint64

func newToken() Token {
	return Token(tokenCounter.Add(1))
}

// Kind categorizes a Registration's keyed resource.
type Kind int

const (
	KindFD Kind = iota
	KindSignal
	KindTimer
	KindGeneric
)

// Data is the record delivered to a Handler.
type Data struct {
	Token Token
	Kind  Kind
	FD    int
	Set   Set

	// Signal-only fields. Delivery fills in Signo only; PID, UID, Status and
	// QValue are always zero, since os/signal does not expose siginfo.
	Signo  int
	PID    int
	UID    int
	Status int
	QValue int64

	// Generic-only payload, set by Manager.Fire.
	Value any
}

// Handler is invoked with a Data record and returns a Result.
type Handler func(Data) result.Result

// Registration is the tuple the Manager keys by Token.
type Registration struct {
	Token   Token
	Kind    Kind
	ResID   int // fd number or signal number; unused for timer and generic
	Set     Set
	Handler Handler
}
