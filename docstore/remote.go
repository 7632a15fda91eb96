package docstore

import (
	"context"
	"fmt"
)

// Entry is a stored payload with the version token the backend assigned to it.
type Entry struct {
	Key   string
	Value []byte
	Token uint64
}

// ConditionMode selects how a Put or Remove is guarded.
type ConditionMode int

const (
	// Unconditional writes or removes regardless of the stored token.
	Unconditional ConditionMode = iota
	// IfAbsent succeeds only when the key does not exist.
	IfAbsent
	// IfToken succeeds only when the stored token equals Condition.Token.
	IfToken
)

func (m ConditionMode) String() string {
	switch m {
	case Unconditional:
		return "unconditional"
	case IfAbsent:
		return "if-absent"
	case IfToken:
		return "if-token"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Condition guards a remote mutation.
type Condition struct {
	Mode  ConditionMode
	Token uint64
}

// Always is the unconditional guard.
func Always() Condition { return Condition{Mode: Unconditional} }

// Absent guards a create.
func Absent() Condition { return Condition{Mode: IfAbsent} }

// MatchToken guards a compare-and-swap against token.
func MatchToken(token uint64) Condition { return Condition{Mode: IfToken, Token: token} }

func (c Condition) String() string {
	if c.Mode == IfToken {
		return fmt.Sprintf("if-token(%d)", c.Token)
	}
	return c.Mode.String()
}

// Remote is a CAS-capable key-value backend. The connection behind it is owned by the caller.
//
// Implementations must:
//   - never return token 0 for a stored entry
//   - return an error matching errors.ErrNotFound for an absent key on Get and Remove
//   - return an error matching errors.ErrConcurrentModification when a Condition fails,
//     preferably a *errors.ConcurrentModificationError naming the stored token
//   - translate their transport faults into the transient sentinels (ErrTimeout, ErrOverloaded,
//     ErrTransportCancelled, ErrNoConnection)
type Remote interface {
	// Name identifies the bucket or namespace for diagnostics.
	Name() string
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, value []byte, cond Condition) (uint64, error)
	Remove(ctx context.Context, key string, cond Condition) error
}
