package store

import (
	"testing"

	"github.com/pavelkim/flowtap/internal/frame"
)

type noopPool struct{}

func (noopPool) Free(mark uint64) {}

func frameOf(t *testing.T, payload string) *frame.Frame {
	t.Helper()
	return frame.New(noopPool{}, []byte(payload), 0, 0)
}
