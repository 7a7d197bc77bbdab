package handoff

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelkim/flowtap/internal/flow"
	"github.com/pavelkim/flowtap/internal/frame"
	"github.com/pavelkim/flowtap/internal/protocol"
)

func testFlow() flow.Flow {
	return flow.FromL4Context(protocol.L4Context{
		SrcIP:   net.ParseIP("10.0.0.1"),
		DstIP:   net.ParseIP("10.0.0.2"),
		SrcPort: 1,
		DstPort: 2,
		Proto:   protocol.TCP,
	})
}

func TestSend_DeliversOnSameShard(t *testing.T) {
	shards := NewShards(2, 4)
	f := testFlow()

	fr := frame.New(nil, []byte("payload"), 0, 1)
	require.NoError(t, shards.Send(f, fr))

	idx := f.Hash() % uint64(shards.Len())
	select {
	case msg := <-shards.Receiver(int(idx)):
		assert.Equal(t, f, msg.Flow)
		assert.Equal(t, fr, msg.Frame)
	default:
		t.Fatal("expected message on the flow's shard")
	}
}

func TestSend_NonBlockingDropsWhenFull(t *testing.T) {
	shards := NewShards(1, 1)
	f := testFlow()

	require.NoError(t, shards.Send(f, frame.New(nil, []byte("a"), 0, 1)))

	err := shards.Send(f, frame.New(nil, []byte("b"), 0, 2))
	assert.ErrorIs(t, err, ErrFull)
}

func TestClose_UnblocksReceivers(t *testing.T) {
	shards := NewShards(1, 1)
	shards.Close()

	_, ok := <-shards.Receiver(0)
	assert.False(t, ok)
}
