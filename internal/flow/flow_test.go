package flow

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelkim/flowtap/internal/protocol"
)

func ctxFor(src, dst string, srcPort, dstPort uint16, proto protocol.Kind) protocol.L4Context {
	return protocol.L4Context{
		SrcIP:   net.ParseIP(src),
		DstIP:   net.ParseIP(dst),
		SrcPort: srcPort,
		DstPort: dstPort,
		Proto:   proto,
	}
}

func TestFromL4Context_DirectionInsensitive(t *testing.T) {
	forward := ctxFor("10.0.0.1", "10.0.0.2", 1234, 80, protocol.TCP)
	reverse := ctxFor("10.0.0.2", "10.0.0.1", 80, 1234, protocol.TCP)

	a := FromL4Context(forward)
	b := FromL4Context(reverse)

	assert.Equal(t, a, b, "same conversation in either direction must canonicalize to the same flow")
}

func TestFromL4Context_DistinctEndpointsDiffer(t *testing.T) {
	a := FromL4Context(ctxFor("10.0.0.1", "10.0.0.2", 1234, 80, protocol.TCP))
	b := FromL4Context(ctxFor("10.0.0.1", "10.0.0.3", 1234, 80, protocol.TCP))

	assert.NotEqual(t, a, b)
}

func TestFromL4Context_ProtoDistinguishes(t *testing.T) {
	a := FromL4Context(ctxFor("10.0.0.1", "10.0.0.2", 1234, 80, protocol.TCP))
	b := FromL4Context(ctxFor("10.0.0.1", "10.0.0.2", 1234, 80, protocol.UDP))

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestHash_StableAcrossDirection(t *testing.T) {
	forward := FromL4Context(ctxFor("192.168.1.5", "93.184.216.34", 55123, 443, protocol.TCP))
	reverse := FromL4Context(ctxFor("93.184.216.34", "192.168.1.5", 443, 55123, protocol.TCP))

	require.Equal(t, forward, reverse)
	assert.Equal(t, forward.Hash(), reverse.Hash())
}

func TestFilename_DeterministicAndDistinct(t *testing.T) {
	a := FromL4Context(ctxFor("10.0.0.1", "10.0.0.2", 1234, 80, protocol.TCP))
	b := FromL4Context(ctxFor("10.0.0.1", "10.0.0.2", 1234, 81, protocol.TCP))

	assert.Equal(t, a.Filename(), a.Filename())
	assert.NotEqual(t, a.Filename(), b.Filename())
}

func TestFilename_VLANDistinguishes(t *testing.T) {
	base := ctxFor("10.0.0.1", "10.0.0.2", 1234, 80, protocol.TCP)
	withVLAN := base

	a := FromL4Context(base)
	fb := FromL4Context(withVLAN)
	fb.HasVLAN = true
	fb.VLANID = 100

	assert.NotEqual(t, a.Filename(), fb.Filename())
}
