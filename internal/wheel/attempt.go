package wheel

// Attempt is the outcome of an optional step whose failure must not abort
// the surrounding operation.
type Attempt[T any] struct {
	Value T
	Err   error
}

func (a Attempt[T]) Ok() bool { return a.Err == nil }

func succeeded[T any](v T) Attempt[T] { return Attempt[T]{Value: v} }

func failed[T any](err error) Attempt[T] { return Attempt[T]{Err: err} }
