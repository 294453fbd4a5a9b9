package batch_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinnou/glitr/batch"
)

// TestBasic tests that batch.Func with default options batches calls.
func TestBasic(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	f := (&batch.Func{
		Many: func(ctx context.Context, args []interface{}) ([]interface{}, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			return args, nil
		},
	}).Invoke

	ctx := batch.WithBatching(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if result, err := f(ctx, i); err != nil || result != i {
				t.Error(err, i)
			}
		}(i)
	}
	wg.Wait()

	// Expect 1, allow for 2 in case of races.
	if calls > 2 {
		t.Error(calls)
	}
}

// TestBackToBack tests that two back-to-back invocations of batch.Func from
// multiple goroutines get batched in a total of two calls.
func TestBackToBack(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	f := (&batch.Func{
		Many: func(ctx context.Context, args []interface{}) ([]interface{}, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			return args, nil
		},
	}).Invoke

	ctx := batch.WithBatching(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if result, err := f(ctx, i); err != nil || result != i {
				t.Error(err, i)
			}
			if result, err := f(ctx, i); err != nil || result != i {
				t.Error(err, i)
			}
		}(i)
	}
	wg.Wait()

	// Expect 2, allow for 3 in case of races.
	if calls > 3 {
		t.Error(calls)
	}
}

// TestShard tests that Func.Shard shards invocations according to the shard.
func TestShard(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	f := (&batch.Func{
		Many: func(ctx context.Context, args []interface{}) ([]interface{}, error) {
			mu.Lock()
			defer mu.Unlock()
			for _, i := range args {
				if i.(int)%3 != args[0].(int)%3 {
					return nil, errors.New("bad shard")
				}
			}
			calls++
			return args, nil
		},
		Shard: func(arg interface{}) interface{} {
			return arg.(int) % 3
		},
	}).Invoke

	ctx := batch.WithBatching(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if result, err := f(ctx, i); err != nil || result != i {
				t.Error(err, i)
			}
		}(i)
	}
	wg.Wait()

	// Expect 3 calls, one for each shard, allow for 4 in case of races.
	if calls > 4 {
		t.Error(calls)
	}
}

// TestMaxSize tests that no more than Func.MaxSize arguments get batched
// together.
func TestMaxSize(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	f := (&batch.Func{
		Many: func(ctx context.Context, args []interface{}) ([]interface{}, error) {
			mu.Lock()
			defer mu.Unlock()
			if len(args) > 5 {
				return nil, errors.New("too many")
			}
			calls++
			return args, nil
		},
		MaxSize: 5,
	}).Invoke

	ctx := batch.WithBatching(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if result, err := f(ctx, i); err != nil || result != i {
				t.Error(err, i)
			}
		}(i)
	}
	wg.Wait()

	// Expect 4 calls, one for each shard, allow for 5 in case of races.
	if calls > 5 {
		t.Error(calls)
	}
}

// TestIncorrectNumberOfResults tests that a batch function that returns the
// wrong number of results is handled gracefully.
func TestIncorrectNumberOfResults(t *testing.T) {
	f := (&batch.Func{
		Many: func(ctx context.Context, args []interface{}) ([]interface{}, error) {
			return append(args, nil), nil
		},
	}).Invoke

	ctx := batch.WithBatching(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := f(ctx, i); err == nil || !strings.Contains(err.Error(), "incorrect number of results") {
				t.Error(err, i)
			}
		}(i)
	}
	wg.Wait()
}

// TestPanic tests that a batch function that panics is handled gracefully.
func TestPanic(t *testing.T) {
	f := (&batch.Func{
		Many: func(ctx context.Context, args []interface{}) ([]interface{}, error) {
			panic("foo")
		},
	}).Invoke

	ctx := batch.WithBatching(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := f(ctx, i); err == nil || !strings.Contains(err.Error(), "panicked: foo") {
				t.Error(err, i)
			}
		}(i)
	}
	wg.Wait()
}

// TestError tests that a batch function that returns an error is handled correctly.
func TestError(t *testing.T) {
	f := (&batch.Func{
		Many: func(ctx context.Context, args []interface{}) ([]interface{}, error) {
			return nil, errors.New("some error")
		},
	}).Invoke

	ctx := batch.WithBatching(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := f(ctx, i); err == nil || !strings.Contains(err.Error(), "some error") {
				t.Error(err, i)
			}
		}(i)
	}
	wg.Wait()
}

func TestNoWithBatching(t *testing.T) {
	ctx := context.Background()
	f := func() {
		(&batch.Func{
			Many: func(ctx context.Context, args []interface{}) ([]interface{}, error) {
				return nil, nil
			},
		}).Invoke(ctx, 0)
	}

	assert.PanicsWithValue(t, "WithBatching must be called on the context before using Func", f)
}

// TestDefer tests that thunks returned by Defer share a single call to Many,
// made when the first thunk is forced.
func TestDefer(t *testing.T) {
	calls := 0
	var seen []interface{}
	f := &batch.Func{
		Many: func(ctx context.Context, args []interface{}) ([]interface{}, error) {
			calls++
			seen = args
			results := make([]interface{}, len(args))
			for i, arg := range args {
				results[i] = arg.(int) * 10
			}
			return results, nil
		},
	}

	ctx := batch.WithBatching(context.Background())

	var thunks []func() (interface{}, error)
	for i := 0; i < 5; i++ {
		thunks = append(thunks, f.Defer(ctx, i))
	}
	assert.Equal(t, 0, calls, "Defer must not call Many")

	for i := len(thunks) - 1; i >= 0; i-- {
		result, err := thunks[i]()
		require.NoError(t, err)
		assert.Equal(t, i*10, result)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, []interface{}{0, 1, 2, 3, 4}, seen)

	// The group is closed once forced; a new Defer starts a new group.
	result, err := f.Defer(ctx, 7)()
	require.NoError(t, err)
	assert.Equal(t, 70, result)
	assert.Equal(t, 2, calls)
}

// TestDeferShardAndMaxSize tests that deferred groups respect Shard and
// MaxSize.
func TestDeferShardAndMaxSize(t *testing.T) {
	var sizes []int
	f := &batch.Func{
		Many: func(ctx context.Context, args []interface{}) ([]interface{}, error) {
			for _, arg := range args {
				if arg.(int)%2 != args[0].(int)%2 {
					return nil, errors.New("bad shard")
				}
			}
			sizes = append(sizes, len(args))
			return args, nil
		},
		Shard: func(arg interface{}) interface{} {
			return arg.(int) % 2
		},
		MaxSize: 3,
	}

	ctx := batch.WithBatching(context.Background())

	var thunks []func() (interface{}, error)
	for i := 0; i < 10; i++ {
		thunks = append(thunks, f.Defer(ctx, i))
	}
	for i, thunk := range thunks {
		result, err := thunk()
		require.NoError(t, err)
		assert.Equal(t, i, result)
	}

	// Evens: 0 2 4 | 6 8. Odds: 1 3 5 | 7 9.
	assert.ElementsMatch(t, []int{3, 3, 2, 2}, sizes)
}

// TestDeferConcurrent tests forcing thunks of one group from many goroutines.
func TestDeferConcurrent(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	f := &batch.Func{
		Many: func(ctx context.Context, args []interface{}) ([]interface{}, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			return args, nil
		},
	}

	ctx := batch.WithBatching(context.Background())

	var thunks []func() (interface{}, error)
	for i := 0; i < 20; i++ {
		thunks = append(thunks, f.Defer(ctx, i))
	}

	var wg sync.WaitGroup
	for i, thunk := range thunks {
		wg.Add(1)
		go func(i int, thunk func() (interface{}, error)) {
			defer wg.Done()
			if result, err := thunk(); err != nil || result != i {
				t.Error(err, i)
			}
		}(i, thunk)
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
}

func TestDeferCanceled(t *testing.T) {
	f := &batch.Func{
		Many: func(ctx context.Context, args []interface{}) ([]interface{}, error) {
			t.Error("Many called on a canceled context")
			return args, nil
		},
	}

	ctx, cancel := context.WithCancel(batch.WithBatching(context.Background()))
	thunk := f.Defer(ctx, 1)
	cancel()

	_, err := thunk()
	assert.ErrorIs(t, err, context.Canceled)
}
