package batch_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/tinnou/glitr/batch"
)

var requestSizes = []int{1, 10, 100, 1000}

func BenchmarkDefer(b *testing.B) {
	f := &batch.Func{
		Many: func(ctx context.Context, args []interface{}) ([]interface{}, error) {
			return args, nil
		},
		MaxSize: 100,
	}

	for _, size := range requestSizes {
		b.Run(fmt.Sprintf("sources-%d", size), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				ctx := batch.WithBatching(context.Background())
				thunks := make([]func() (interface{}, error), size)
				for j := range thunks {
					thunks[j] = f.Defer(ctx, j)
				}

				g, _ := errgroup.WithContext(ctx)
				for j := range thunks {
					thunk := thunks[j]
					g.Go(func() error {
						_, err := thunk()
						return err
					})
				}
				require.NoError(b, g.Wait())
			}
		})
	}
}
