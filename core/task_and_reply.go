package core

import (
	"context"
	"time"
)

// ReplyFunc receives the outcome of the task it is attached to.
type ReplyFunc[T any] func(ctx context.Context, result T, err error)

// SpawnAndReply runs task on rt and hands its result to reply. With a
// replyTo sequence the reply is posted there; otherwise it runs in the same
// task right after task returns. A panicking task never reaches its reply;
// its panic is reported through the returned handle like any other task
// failure.
//
// Example:
//
//	SpawnAndReply(ctx, rt,
//	    func(ctx context.Context) (int, error) {
//	        return len("Hello"), nil
//	    },
//	    func(ctx context.Context, length int, err error) {
//	        fmt.Printf("Length: %d\n", length)
//	    },
//	    uiSequence,
//	)
func SpawnAndReply[T any](
	ctx context.Context,
	rt *Runtime,
	task func(ctx context.Context) (T, error),
	reply ReplyFunc[T],
	replyTo *Sequence,
	opts ...SpawnOption,
) (TaskHandle, error) {
	if task == nil || reply == nil {
		return TaskHandle{}, ErrNilTask
	}
	return rt.Spawn(ctx, func(ctx context.Context) (any, error) {
		result, err := task(ctx)
		if replyTo == nil {
			reply(ctx, result, err)
			return result, err
		}
		if perr := replyTo.Post(func(rctx context.Context) {
			reply(rctx, result, err)
		}); perr != nil {
			rt.logger.Warn("reply dropped", F("sequence", replyTo.Name()), F("error", perr))
		}
		return result, err
	}, opts...)
}

// SpawnDelayedAndReply is SpawnAndReply with task starting after delay.
func SpawnDelayedAndReply[T any](
	ctx context.Context,
	rt *Runtime,
	delay time.Duration,
	task func(ctx context.Context) (T, error),
	reply ReplyFunc[T],
	replyTo *Sequence,
	opts ...SpawnOption,
) (TaskHandle, error) {
	if task == nil {
		return TaskHandle{}, ErrNilTask
	}
	delayed := func(ctx context.Context) (T, error) {
		if err := Sleep(ctx, delay); err != nil {
			var zero T
			return zero, err
		}
		return task(ctx)
	}
	return SpawnAndReply(ctx, rt, delayed, reply, replyTo, opts...)
}
