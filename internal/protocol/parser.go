// Package protocol implements the zero-copy layer-2/3/4 decode the
// receive core runs on every frame: Ethernet (+ VLAN stack),
// IPv4/IPv6, TCP/UDP, down to an L4Context carrying just enough to
// derive a Flow and locate the payload.
package protocol

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Kind classifies a layer-4 protocol.
type Kind uint8

const (
	TCP Kind = iota
	UDP
)

func (k Kind) String() string {
	if k == UDP {
		return "udp"
	}
	return "tcp"
}

// ErrorKind classifies why Parser.Parse failed.
type ErrorKind uint8

const (
	NotEthernet ErrorKind = iota
	NotIP
	NotTCPOrUDP
	Malformed
)

func (k ErrorKind) String() string {
	switch k {
	case NotEthernet:
		return "not_ethernet"
	case NotIP:
		return "not_ip"
	case NotTCPOrUDP:
		return "not_tcp_or_udp"
	default:
		return "malformed"
	}
}

// Error is a structured, non-fatal parse failure. It is accounted by
// the receive core, never logged per packet.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, err error) *Error { return &Error{Kind: kind, Err: err} }

// L4Context is the parser's output: enough of the decoded headers to
// derive a Flow and slice out the payload. Immutable once produced.
type L4Context struct {
	SrcIP         net.IP
	DstIP         net.IP
	SrcPort       uint16
	DstPort       uint16
	Proto         Kind
	HasVLAN       bool
	VLANID        uint16
	PayloadOffset int
	PayloadLength int
}

// Payload slices the accepted payload out of the original frame bytes.
func (c *L4Context) Payload(data []byte) []byte {
	return data[c.PayloadOffset : c.PayloadOffset+c.PayloadLength]
}

// Parser decodes frames into L4Contexts. It is not safe for concurrent
// use: each receive core owns exactly one Parser so that decoding
// never allocates — gopacket's DecodeFromBytes writes into the
// Parser's own layer structs rather than allocating new ones.
type Parser struct {
	eth   layers.Ethernet
	dot1q layers.Dot1Q
	ip4   layers.IPv4
	ip6   layers.IPv6
	tcp   layers.TCP
	udp   layers.UDP
}

// NewParser returns a reusable, per-core parser.
func NewParser() *Parser { return &Parser{} }

// Parse decodes data into an L4Context or returns a structured Error.
// It never reads past len(data); every offset is bounds-checked by the
// underlying gopacket decode before use.
func (p *Parser) Parse(data []byte) (L4Context, error) {
	if err := p.eth.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return L4Context{}, newError(NotEthernet, err)
	}

	etherType := p.eth.EthernetType
	rest := p.eth.LayerPayload()

	var ctx L4Context
	for etherType == layers.EthernetTypeDot1Q || etherType == layers.EthernetTypeQinQ {
		if err := p.dot1q.DecodeFromBytes(rest, gopacket.NilDecodeFeedback); err != nil {
			return L4Context{}, newError(Malformed, err)
		}
		ctx.HasVLAN = true
		ctx.VLANID = p.dot1q.VLANIdentifier
		etherType = p.dot1q.Type
		rest = p.dot1q.LayerPayload()
	}

	var l4Proto layers.IPProtocol
	var l4Payload []byte
	var l3HeaderLen int

	switch etherType {
	case layers.EthernetTypeIPv4:
		if err := p.ip4.DecodeFromBytes(rest, gopacket.NilDecodeFeedback); err != nil {
			return L4Context{}, newError(Malformed, err)
		}
		ctx.SrcIP = p.ip4.SrcIP
		ctx.DstIP = p.ip4.DstIP
		l4Proto = p.ip4.Protocol
		l4Payload = p.ip4.LayerPayload()
		l3HeaderLen = len(p.ip4.LayerContents())
	case layers.EthernetTypeIPv6:
		if err := p.ip6.DecodeFromBytes(rest, gopacket.NilDecodeFeedback); err != nil {
			return L4Context{}, newError(Malformed, err)
		}
		ctx.SrcIP = p.ip6.SrcIP
		ctx.DstIP = p.ip6.DstIP
		l4Proto = p.ip6.NextHeader
		l4Payload = p.ip6.LayerPayload()
		l3HeaderLen = len(p.ip6.LayerContents())
	default:
		return L4Context{}, newError(NotIP, nil)
	}

	headerLen := len(data) - len(rest) + l3HeaderLen

	switch l4Proto {
	case layers.IPProtocolTCP:
		if err := p.tcp.DecodeFromBytes(l4Payload, gopacket.NilDecodeFeedback); err != nil {
			return L4Context{}, newError(Malformed, err)
		}
		ctx.Proto = TCP
		ctx.SrcPort = uint16(p.tcp.SrcPort)
		ctx.DstPort = uint16(p.tcp.DstPort)
		l4HeaderLen := int(p.tcp.DataOffset) * 4
		if l4HeaderLen < 20 || l4HeaderLen > len(l4Payload) {
			return L4Context{}, newError(Malformed, fmt.Errorf("tcp data offset %d exceeds payload %d", l4HeaderLen, len(l4Payload)))
		}
		ctx.PayloadOffset = headerLen + l4HeaderLen
		ctx.PayloadLength = len(l4Payload) - l4HeaderLen
	case layers.IPProtocolUDP:
		if err := p.udp.DecodeFromBytes(l4Payload, gopacket.NilDecodeFeedback); err != nil {
			return L4Context{}, newError(Malformed, err)
		}
		ctx.Proto = UDP
		ctx.SrcPort = uint16(p.udp.SrcPort)
		ctx.DstPort = uint16(p.udp.DstPort)
		const udpHeaderLen = 8
		total := int(p.udp.Length)
		if total < udpHeaderLen || total > len(l4Payload) {
			return L4Context{}, newError(Malformed, fmt.Errorf("udp length %d inconsistent with payload %d", total, len(l4Payload)))
		}
		ctx.PayloadOffset = headerLen + udpHeaderLen
		ctx.PayloadLength = total - udpHeaderLen
	default:
		return L4Context{}, newError(NotTCPOrUDP, nil)
	}

	if ctx.PayloadOffset+ctx.PayloadLength > len(data) {
		return L4Context{}, newError(Malformed, fmt.Errorf("payload bounds exceed frame length"))
	}

	return ctx, nil
}
