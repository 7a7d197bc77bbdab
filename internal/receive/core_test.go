package receive

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelkim/flowtap/internal/filter"
	"github.com/pavelkim/flowtap/internal/flowtable"
	"github.com/pavelkim/flowtap/internal/frame"
	"github.com/pavelkim/flowtap/internal/handoff"
	"github.com/pavelkim/flowtap/internal/logger"
	"github.com/pavelkim/flowtap/internal/queue"
	"github.com/pavelkim/flowtap/internal/ruleset"
	"github.com/pavelkim/flowtap/internal/subscription"
)

type noopPool struct{}

func (noopPool) Free(mark uint64) {}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.NewLogger(&logger.Config{Console: logger.SinkConfig{Enabled: true, Level: "error"}})
	require.NoError(t, err)
	return l
}

func udpFrame(t *testing.T, src, dst string, srcPort, dstPort uint16, payload []byte) *frame.Frame {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version: 4, IHL: 5, TTL: 64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))

	data := make([]byte, len(buf.Bytes()))
	copy(data, buf.Bytes())
	return frame.New(noopPool{}, data, 0, 0)
}

func newTestCore(t *testing.T, patterns []string) (*Core, *flowtable.Table, chan handoff.Message) {
	t.Helper()

	table := flowtable.New(1, time.Hour)
	shards := handoff.NewShards(1, 8)
	m, err := ruleset.Compile(patterns)
	require.NoError(t, err)
	fc := filter.New(table, time.Hour, ruleset.NewCell(m), shards)

	core, err := New(0, false, []queue.Queue{queue.NewNoop("q0", queue.Receive)}, fc, nil, 32, testLogger(t))
	require.NoError(t, err)

	return core, table, makeChan(shards)
}

func makeChan(shards *handoff.Shards) chan handoff.Message {
	out := make(chan handoff.Message, 8)
	go func() {
		for msg := range shards.Receiver(0) {
			out <- msg
		}
	}()
	return out
}

func TestHandle_MatchingFlowIsAdmittedAndInserted(t *testing.T) {
	core, table, received := newTestCore(t, []string{`secret`})
	fr := udpFrame(t, "10.0.0.1", "10.0.0.2", 1111, 53, []byte("contains secret data"))

	core.handle(fr)

	assert.Equal(t, uint64(1), core.Stats.Matched.Load())
	assert.Equal(t, uint64(1), core.Stats.Admitted.Load())
	assert.Equal(t, 1, table.Len())

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("expected frame on hand-off channel")
	}
}

func TestHandle_NonMatchingFlowIsDropped(t *testing.T) {
	core, table, received := newTestCore(t, []string{`secret`})
	fr := udpFrame(t, "10.0.0.1", "10.0.0.2", 1111, 53, []byte("nothing interesting"))

	core.handle(fr)

	assert.Equal(t, uint64(0), core.Stats.Matched.Load())
	assert.Equal(t, uint64(0), core.Stats.Admitted.Load())
	assert.Equal(t, 0, table.Len())

	select {
	case <-received:
		t.Fatal("did not expect a frame on the hand-off channel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandle_RefreshBypassesRuleCheck(t *testing.T) {
	core, _, received := newTestCore(t, []string{`secret`})

	first := udpFrame(t, "10.0.0.1", "10.0.0.2", 2222, 53, []byte("secret once"))
	core.handle(first)
	<-received

	core.fc.Cell.Swap(mustCompile(t, nil)) // now nothing would match a fresh lookup

	second := udpFrame(t, "10.0.0.1", "10.0.0.2", 2222, 53, []byte("no trigger word here"))
	core.handle(second)

	assert.Equal(t, uint64(2), core.Stats.Admitted.Load(), "already-tracked flow bypasses the rule screen entirely")
	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("expected second frame to be admitted via refresh")
	}
}

func TestHandle_ReverseDirectionRefreshesSameFlow(t *testing.T) {
	core, table, received := newTestCore(t, []string{`secret`})

	forward := udpFrame(t, "10.0.0.1", "10.0.0.2", 3333, 53, []byte("secret"))
	core.handle(forward)
	<-received

	reverse := udpFrame(t, "10.0.0.2", "10.0.0.1", 53, 3333, []byte("reply, no keyword"))
	core.handle(reverse)

	assert.Equal(t, 1, table.Len(), "reverse-direction packet must canonicalize to the same tracked flow")
	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("expected reverse-direction packet to be admitted via refresh")
	}
}

func TestHandle_HotSwapGovernsNewFlows(t *testing.T) {
	core, _, received := newTestCore(t, []string{`alpha`})

	core.fc.Cell.Swap(mustCompile(t, []string{`beta`}))

	missed := udpFrame(t, "10.0.0.1", "10.0.0.2", 4444, 53, []byte("alpha and no newer keyword"))
	core.handle(missed)
	assert.Equal(t, uint64(0), core.Stats.Admitted.Load())

	hit := udpFrame(t, "10.0.0.1", "10.0.0.3", 4444, 53, []byte("beta is here"))
	core.handle(hit)
	assert.Equal(t, uint64(1), core.Stats.Admitted.Load())

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("expected the post-swap matching flow to be admitted")
	}
}

func TestHandle_SubscriptionInvokedOnAdmit(t *testing.T) {
	table := flowtable.New(1, time.Hour)
	shards := handoff.NewShards(1, 8)
	m := mustCompile(t, []string{`hit`})
	fc := filter.New(table, time.Hour, ruleset.NewCell(m), shards)

	var mu sync.Mutex
	var calls int
	sub := subscription.New(func(s subscription.Subscribable, _ *filter.Context) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, false, nil)

	core, err := New(0, false, []queue.Queue{queue.NewNoop("q0", queue.Receive)}, fc, sub, 32, testLogger(t))
	require.NoError(t, err)
	_ = makeChan(shards)

	fr := udpFrame(t, "10.0.0.1", "10.0.0.2", 5555, 53, []byte("hit this"))
	core.handle(fr)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestAdmit_SubscriptionSafeFromConcurrentStoreRelease(t *testing.T) {
	table := flowtable.New(1, time.Hour)
	shards := handoff.NewShards(1, 8)
	m := mustCompile(t, []string{`hit`})
	fc := filter.New(table, time.Hour, ruleset.NewCell(m), shards)

	// Stands in for internal/store.Store.Run: drains the hand-off
	// channel and releases its reference the instant a frame arrives.
	go func() {
		for msg := range shards.Receiver(0) {
			msg.Frame.Release()
		}
	}()

	payload := []byte("hit this payload")
	var observed []byte
	done := make(chan struct{})
	sub := subscription.New(func(s subscription.Subscribable, _ *filter.Context) {
		defer close(done)
		time.Sleep(5 * time.Millisecond) // give the simulated store every chance to release first
		fs := s.(subscription.FrameSubscription)
		observed = append([]byte(nil), fs.Frame.Bytes()...)
	}, false, nil)

	core, err := New(0, false, []queue.Queue{queue.NewNoop("q0", queue.Receive)}, fc, sub, 32, testLogger(t))
	require.NoError(t, err)

	fr := udpFrame(t, "10.0.0.1", "10.0.0.2", 6666, 53, payload)
	core.handle(fr)

	<-done
	assert.NotNil(t, observed, "subscription callback must still see a live buffer even after the store releases its own reference concurrently")
}

func mustCompile(t *testing.T, patterns []string) *ruleset.Matcher {
	t.Helper()
	m, err := ruleset.Compile(patterns)
	require.NoError(t, err)
	return m
}
