package fn

import "context"

// Stage transforms In to Out under a context, reporting failure through the
// Result rather than a separate error return so stages compose.
type Stage[In, Out any] func(context.Context, In) Result[Out]

// Then chains two stages. The second stage only runs when the first
// succeeded; its error otherwise passes through unchanged.
func Then[A, B, C any](first Stage[A, B], second Stage[B, C]) Stage[A, C] {
	return func(ctx context.Context, a A) Result[C] {
		r := first(ctx, a)
		if r.IsErr() {
			_, err := r.Unwrap()
			return Err[C](err)
		}
		v, _ := r.Unwrap()
		return second(ctx, v)
	}
}

// MapStage lifts a pure function into a Stage that cannot fail.
func MapStage[In, Out any](f func(In) Out) Stage[In, Out] {
	return func(_ context.Context, in In) Result[Out] {
		return Ok(f(in))
	}
}
