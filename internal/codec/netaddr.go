package codec

import (
	"net"
	"net/netip"

	"github.com/pgwire/pgwire/internal/pgerr"
)

const (
	pgAFInet  = 2
	pgAFInet6 = 3
)

// inetCodec covers both inet and cidr: the binary format is
// [family][prefix_len][is_cidr][addr_len][addr bytes], matching the layout
// libpq uses on the wire (src/backend/utils/adt/network.c's pq_sendint
// sequence), regardless of whether the Go value came from net.IP or
// netip.Addr/Prefix.
var inetCodec = Codec{
	Encode: func(_ *Registry, format Format, v any) ([]byte, error) {
		prefix, isCIDR, err := toPrefix(v)
		if err != nil {
			return nil, err
		}
		if format == Text {
			if isCIDR {
				return []byte(prefix.String()), nil
			}
			return []byte(prefix.Addr().String()), nil
		}
		addr := prefix.Addr()
		family := byte(pgAFInet)
		var addrSlice []byte
		if addr.Is4() {
			addrBytes := addr.As4()
			addrSlice = addrBytes[:]
		} else {
			family = pgAFInet6
			b16 := addr.As16()
			addrSlice = b16[:]
		}
		isCIDRByte := byte(0)
		if isCIDR {
			isCIDRByte = 1
		}
		out := make([]byte, 4+len(addrSlice))
		out[0] = family
		out[1] = byte(prefix.Bits())
		out[2] = isCIDRByte
		out[3] = byte(len(addrSlice))
		copy(out[4:], addrSlice)
		return out, nil
	},
	Decode: func(_ *Registry, format Format, raw []byte) (any, error) {
		if format == Text {
			addr, err := netip.ParsePrefix(string(raw))
			if err != nil {
				a, aerr := netip.ParseAddr(string(raw))
				if aerr != nil {
					return nil, pgerr.Wrap(pgerr.KindData, err, "parsing inet/cidr text %q", raw)
				}
				return netip.PrefixFrom(a, a.BitLen()), nil
			}
			return addr, nil
		}
		if len(raw) < 4 {
			return nil, pgerr.New(pgerr.KindData, "inet: short buffer")
		}
		bits := int(raw[1])
		addrLen := int(raw[3])
		if len(raw) != 4+addrLen {
			return nil, pgerr.New(pgerr.KindData, "inet: length mismatch, header says %d bytes", addrLen)
		}
		var addr netip.Addr
		switch raw[0] {
		case pgAFInet:
			var b [4]byte
			copy(b[:], raw[4:])
			addr = netip.AddrFrom4(b)
		case pgAFInet6:
			var b [16]byte
			copy(b[:], raw[4:])
			addr = netip.AddrFrom16(b)
		default:
			return nil, pgerr.New(pgerr.KindData, "inet: unknown family %d", raw[0])
		}
		return netip.PrefixFrom(addr, bits), nil
	},
}

// toPrefix normalizes the several shapes a caller may reasonably pass for
// an inet/cidr parameter into a netip.Prefix plus whether the value was
// cidr-typed (a bare address encodes as a /32 or /128 "inet", a
// caller-supplied prefix with fewer bits than the address width is cidr).
func toPrefix(v any) (netip.Prefix, bool, error) {
	switch addr := v.(type) {
	case netip.Prefix:
		return addr, true, nil
	case netip.Addr:
		return netip.PrefixFrom(addr, addr.BitLen()), false, nil
	case net.IP:
		a, ok := netip.AddrFromSlice(addr)
		if !ok {
			return netip.Prefix{}, false, pgerr.New(pgerr.KindProgramming, "invalid net.IP value")
		}
		a = a.Unmap()
		return netip.PrefixFrom(a, a.BitLen()), false, nil
	case *net.IPNet:
		a, ok := netip.AddrFromSlice(addr.IP)
		if !ok {
			return netip.Prefix{}, false, pgerr.New(pgerr.KindProgramming, "invalid net.IPNet value")
		}
		a = a.Unmap()
		ones, _ := addr.Mask.Size()
		return netip.PrefixFrom(a, ones), true, nil
	default:
		return netip.Prefix{}, false, pgerr.New(pgerr.KindProgramming, "expected netip.Addr, netip.Prefix, net.IP, or *net.IPNet, got %T", v)
	}
}
