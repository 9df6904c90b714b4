package services

import "context"

// ctxKey is a typed context key; the zero value of T means "unset".
type ctxKey[T comparable] struct{ name string }

func (k ctxKey[T]) with(ctx context.Context, v T) context.Context {
	var zero T
	if v == zero {
		return ctx
	}
	return context.WithValue(ctx, k, v)
}

func (k ctxKey[T]) from(ctx context.Context) (T, bool) {
	v, ok := ctx.Value(k).(T)
	return v, ok
}

var (
	batchIDKey   = ctxKey[string]{"batch_id"}
	itemIndexKey = ctxKey[int]{"item_index"}
	stageKey     = ctxKey[string]{"stage"}
	requestIDKey = ctxKey[string]{"request_id"}
)

// WithBatchID tags ctx with the batch a file upload belongs to.
func WithBatchID(ctx context.Context, id string) context.Context { return batchIDKey.with(ctx, id) }

func BatchIDFromContext(ctx context.Context) (string, bool) { return batchIDKey.from(ctx) }

// WithItemIndex records the zero-based position of a file in its batch.
func WithItemIndex(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, itemIndexKey, index)
}

func ItemIndexFromContext(ctx context.Context) (int, bool) { return itemIndexKey.from(ctx) }

// WithStage names the pipeline step the next requests belong to.
func WithStage(ctx context.Context, stage string) context.Context { return stageKey.with(ctx, stage) }

func StageFromContext(ctx context.Context) (string, bool) { return stageKey.from(ctx) }

// WithRequestID sets the correlation ID sent as X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return requestIDKey.with(ctx, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) { return requestIDKey.from(ctx) }
