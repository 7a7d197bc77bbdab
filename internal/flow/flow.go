// Package flow derives the canonical, direction-insensitive key used
// to look up and persist a conversation between two endpoints.
package flow

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"net"

	"github.com/cespare/xxhash/v2"
	"github.com/pavelkim/flowtap/internal/protocol"
)

// Addr is one half of a flow, normalized to a 16-byte IP so IPv4 and
// IPv6 endpoints compare consistently.
type Addr struct {
	IP   [16]byte
	Port uint16
}

func addrFromIP(ip net.IP, port uint16) Addr {
	var a Addr
	copy(a.IP[:], ip.To16())
	a.Port = port
	return a
}

func compareAddr(a, b Addr) int {
	if c := bytes.Compare(a.IP[:], b.IP[:]); c != 0 {
		return c
	}
	switch {
	case a.Port < b.Port:
		return -1
	case a.Port > b.Port:
		return 1
	default:
		return 0
	}
}

// Flow is the canonical, comparable key for a bidirectional
// conversation. Two packets belonging to the same conversation, seen
// in either direction, hash to an equal Flow: endpoints are ordered so
// that the key does not depend on which side sent the packet.
type Flow struct {
	Hi      Addr
	Lo      Addr
	Proto   protocol.Kind
	HasVLAN bool
	VLANID  uint16
}

// FromL4Context builds the canonical Flow for a decoded packet.
func FromL4Context(ctx protocol.L4Context) Flow {
	src := addrFromIP(ctx.SrcIP, ctx.SrcPort)
	dst := addrFromIP(ctx.DstIP, ctx.DstPort)

	f := Flow{
		Proto:   ctx.Proto,
		HasVLAN: ctx.HasVLAN,
		VLANID:  ctx.VLANID,
	}
	if compareAddr(src, dst) >= 0 {
		f.Hi, f.Lo = src, dst
	} else {
		f.Hi, f.Lo = dst, src
	}
	return f
}

// bytes is the fixed-width canonical encoding used both for hashing
// and for the on-disk filename, so the two never disagree.
func (f Flow) bytes() []byte {
	buf := make([]byte, 0, 16+2+16+2+1+1+2)
	buf = append(buf, f.Hi.IP[:]...)
	buf = binary.BigEndian.AppendUint16(buf, f.Hi.Port)
	buf = append(buf, f.Lo.IP[:]...)
	buf = binary.BigEndian.AppendUint16(buf, f.Lo.Port)
	buf = append(buf, byte(f.Proto))
	if f.HasVLAN {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.BigEndian.AppendUint16(buf, f.VLANID)
	return buf
}

// Hash returns a stable hash of the canonical key, used for hand-off
// shard selection. Equal flows (in either original direction) always
// hash equal.
func (f Flow) Hash() uint64 {
	return xxhash.Sum64(f.bytes())
}

// Filename returns a deterministic, filesystem-safe, collision-free
// name for this flow's persistence file. Because the encoding is
// fixed-width, distinct flows never collide.
func (f Flow) Filename() string {
	return hex.EncodeToString(f.bytes()) + ".flow"
}
