package solana

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies failures at the RPC boundary.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	// KindTransient failures are retried with backoff.
	KindTransient
	// KindSkippedSlot means the chain produced no block for the slot.
	KindSkippedSlot
	// KindFatal failures stop the pipeline.
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransient:
		return "transient"
	case KindSkippedSlot:
		return "skipped_slot"
	case KindFatal:
		return "fatal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	// ErrSlotSkipped matches any skipped-slot error via errors.Is.
	ErrSlotSkipped = errors.New("slot skipped")

	// ErrRetriesExhausted wraps the last transient error once the retry budget is spent.
	ErrRetriesExhausted = errors.New("rpc retries exhausted")

	// ErrBlockPending matches a block the node has not made available yet. Recent
	// skipped slots report this until they are rooted.
	ErrBlockPending = errors.New("block not yet available")
)

// JSON-RPC error codes returned by Solana nodes.
const (
	codeBlockNotAvailable          = -32004
	codeNodeUnhealthy              = -32005
	codeSlotSkipped                = -32007
	codeLongTermStorageSlotSkipped = -32009
	codeBlockStatusNotAvailable    = -32014
	codeMinContextSlotNotReached   = -32016
)

// RPCError is a classified RPC failure.
type RPCError struct {
	Kind    ErrorKind
	Code    int // JSON-RPC or HTTP status code, 0 for transport errors
	Message string
	Err     error

	pending bool
}

func (e *RPCError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rpc %s error: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("rpc %s error %d: %s", e.Kind, e.Code, e.Message)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrSlotSkipped and ErrBlockPending.
func (e *RPCError) Is(target error) bool {
	switch target {
	case ErrSlotSkipped:
		return e.Kind == KindSkippedSlot
	case ErrBlockPending:
		return e.pending
	default:
		return false
	}
}

// classifyCode maps a JSON-RPC error code to an ErrorKind.
func classifyCode(code int) ErrorKind {
	switch code {
	case codeSlotSkipped, codeLongTermStorageSlotSkipped:
		return KindSkippedSlot
	case codeBlockNotAvailable, codeNodeUnhealthy, codeBlockStatusNotAvailable, codeMinContextSlotNotReached:
		return KindTransient
	default:
		return KindFatal
	}
}

// KindOf classifies err. Exhausted retries and unknown errors are fatal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, ErrRetriesExhausted) {
		return KindFatal
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindFatal
	}
	return KindFatal
}

// IsSkippedSlot reports whether err means the slot has no block.
func IsSkippedSlot(err error) bool {
	return KindOf(err) == KindSkippedSlot
}
