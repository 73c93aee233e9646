package kcube

import (
	"context"
	"testing"
)

// testContext returns a context that is canceled when the test ends. It
// stands in for testing.T.Context, which needs a Go 1.24 toolchain while
// this module must also build with earlier ones.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
