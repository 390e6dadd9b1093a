// Package assert panics on programmer errors: broken invariants and
// missing dependencies. It is not for validating input.
package assert

import (
	"context"
	"fmt"
	"reflect"
	"time"
)

func Assert(cond bool, msg string) {
	if !cond {
		panic(msg)
	}
}

func Assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

func AssertDeadline(ctx context.Context) {
	if ctx == nil {
		panic("context is nil")
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		panic("deadline not set")
	}
	if deadline.Before(time.Now()) {
		panic("deadline has already passed")
	}
}

func AssertNotEmpty(s string) {
	if s == "" {
		panic("expected non-empty string")
	}
}

// AssertNotNil also catches typed nils such as a nil *Engine stored in
// an interface.
func AssertNotNil(a any) {
	if a == nil {
		panic("expect non-nil value")
	}
	v := reflect.ValueOf(a)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		if v.IsNil() {
			panic(fmt.Sprintf("expect non-nil %T", a))
		}
	}
}
