package assert

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAssertNotNil(t *testing.T) {
	var p *int
	var m map[string]int
	var f func()

	require.Panics(t, func() { AssertNotNil(nil) })
	require.Panics(t, func() { AssertNotNil(p) })
	require.Panics(t, func() { AssertNotNil(m) })
	require.Panics(t, func() { AssertNotNil(f) })

	n := 1
	require.NotPanics(t, func() { AssertNotNil(&n) })
	require.NotPanics(t, func() { AssertNotNil(n) })
	require.NotPanics(t, func() { AssertNotNil("") })
}

func TestAssertDeadline(t *testing.T) {
	require.Panics(t, func() { AssertDeadline(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	require.NotPanics(t, func() { AssertDeadline(ctx) })
}

func TestAssertf(t *testing.T) {
	require.PanicsWithValue(t, "lap 3 of 2", func() { Assertf(false, "lap %d of %d", 3, 2) })
	require.NotPanics(t, func() { Assertf(true, "unused") })
}
