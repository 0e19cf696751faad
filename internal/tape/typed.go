package tape

import (
	"context"
	"encoding/json"
	"fmt"
)

// As converts v into T. Values already of type T are returned as-is;
// replayed JSON-shaped values are converted through encoding/json.
func As[T any](v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	if t, ok := v.(T); ok {
		return t, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("convert %T to %T: %w", v, zero, err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, fmt.Errorf("convert %T to %T: %w", v, zero, err)
	}
	return out, nil
}

// Arg converts args[i] into T.
func Arg[T any](args []any, i int) (T, error) {
	if i < 0 || i >= len(args) {
		var zero T
		return zero, fmt.Errorf("argument %d out of range (%d arguments)", i, len(args))
	}
	return As[T](args[i])
}

func typedResult[R any](v any, err error) (R, error) {
	if err != nil {
		var zero R
		return zero, err
	}
	return As[R](v)
}

// Input1 is InterceptInput for a one-argument function.
func Input1[A, R any](r *Recorder, alias string, fn func(context.Context, A) (R, error), extractor KeyExtractor) func(context.Context, A) (R, error) {
	wrapped := r.InterceptInput(alias, func(ctx context.Context, args ...any) (any, error) {
		a, err := Arg[A](args, 0)
		if err != nil {
			return nil, err
		}
		return fn(ctx, a)
	}, extractor)

	return func(ctx context.Context, a A) (R, error) {
		return typedResult[R](wrapped(ctx, a))
	}
}

// Input2 is InterceptInput for a two-argument function.
func Input2[A, B, R any](r *Recorder, alias string, fn func(context.Context, A, B) (R, error), extractor KeyExtractor) func(context.Context, A, B) (R, error) {
	wrapped := r.InterceptInput(alias, func(ctx context.Context, args ...any) (any, error) {
		a, err := Arg[A](args, 0)
		if err != nil {
			return nil, err
		}
		b, err := Arg[B](args, 1)
		if err != nil {
			return nil, err
		}
		return fn(ctx, a, b)
	}, extractor)

	return func(ctx context.Context, a A, b B) (R, error) {
		return typedResult[R](wrapped(ctx, a, b))
	}
}

// Output1 is InterceptOutput for a one-argument function.
func Output1[A, R any](r *Recorder, alias string, fn func(context.Context, A) (R, error)) func(context.Context, A) (R, error) {
	wrapped := r.InterceptOutput(alias, func(ctx context.Context, args ...any) (any, error) {
		a, err := Arg[A](args, 0)
		if err != nil {
			return nil, err
		}
		return fn(ctx, a)
	})

	return func(ctx context.Context, a A) (R, error) {
		return typedResult[R](wrapped(ctx, a))
	}
}

// Output2 is InterceptOutput for a two-argument function.
func Output2[A, B, R any](r *Recorder, alias string, fn func(context.Context, A, B) (R, error)) func(context.Context, A, B) (R, error) {
	wrapped := r.InterceptOutput(alias, func(ctx context.Context, args ...any) (any, error) {
		a, err := Arg[A](args, 0)
		if err != nil {
			return nil, err
		}
		b, err := Arg[B](args, 1)
		if err != nil {
			return nil, err
		}
		return fn(ctx, a, b)
	})

	return func(ctx context.Context, a A, b B) (R, error) {
		return typedResult[R](wrapped(ctx, a, b))
	}
}
