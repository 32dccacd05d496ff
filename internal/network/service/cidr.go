package service

import (
	"encoding/binary"
	"net/netip"
	"strings"

	"github.com/suyashwaghule/joitex-IVM/pkg/errors"
)

// Prefix bounds accepted for pools. Anything wider than /16 would make host
// enumeration unbounded in practice.
const (
	MinPrefixBits = 16
	MaxPrefixBits = 32
)

// Subnet is a validated IPv4 pool range
type Subnet struct {
	prefix netip.Prefix
}

// ParseSubnet parses an IPv4 CIDR. Host bits are masked off, so
// 10.0.0.7/24 becomes 10.0.0.0/24.
func ParseSubnet(cidr string) (Subnet, error) {
	p, err := netip.ParsePrefix(strings.TrimSpace(cidr))
	if err != nil {
		return Subnet{}, errors.Validation(map[string]string{"cidr": "must be a valid CIDR such as 10.0.0.0/24"})
	}
	if !p.Addr().Is4() {
		return Subnet{}, errors.Validation(map[string]string{"cidr": "only IPv4 pools are supported"})
	}
	if p.Bits() < MinPrefixBits || p.Bits() > MaxPrefixBits {
		return Subnet{}, errors.Validation(map[string]string{"cidr": "prefix length must be between /16 and /32"})
	}
	return Subnet{prefix: p.Masked()}, nil
}

// String returns the canonical CIDR
func (s Subnet) String() string {
	return s.prefix.String()
}

// Contains reports whether addr lies inside the subnet
func (s Subnet) Contains(addr netip.Addr) bool {
	return s.prefix.Contains(addr)
}

// first and last usable host as integers. /31 and /32 have no network or
// broadcast address (RFC 3021).
func (s Subnet) hostRange() (uint32, uint32) {
	base := toUint32(s.prefix.Addr())
	size := uint32(1) << (32 - s.prefix.Bits())
	last := base + size - 1
	if s.prefix.Bits() >= 31 {
		return base, last
	}
	return base + 1, last - 1
}

// UsableHosts counts the assignable host addresses
func (s Subnet) UsableHosts() int {
	first, last := s.hostRange()
	return int(last-first) + 1
}

// IsUsable reports whether addr is an assignable host of the subnet
func (s Subnet) IsUsable(addr netip.Addr) bool {
	if !addr.Is4() || !s.Contains(addr) {
		return false
	}
	first, last := s.hostRange()
	v := toUint32(addr)
	return v >= first && v <= last
}

// Capacity is the number of hosts customers can receive: every usable host
// except the gateway when it occupies one.
func (s Subnet) Capacity(gateway netip.Addr) int {
	n := s.UsableHosts()
	if gateway.IsValid() && s.IsUsable(gateway) {
		n--
	}
	return n
}

// LowestFree walks the usable hosts in ascending order and returns the first
// one that is neither taken nor the gateway.
func (s Subnet) LowestFree(taken map[netip.Addr]struct{}, gateway netip.Addr) (netip.Addr, bool) {
	first, last := s.hostRange()
	for v := first; ; v++ {
		addr := fromUint32(v)
		if addr != gateway {
			if _, used := taken[addr]; !used {
				return addr, true
			}
		}
		if v == last {
			break
		}
	}
	return netip.Addr{}, false
}

// ParseGateway parses an optional gateway and checks that it lies inside the
// subnet. An empty string yields the zero Addr.
func ParseGateway(s Subnet, gateway string) (netip.Addr, error) {
	gateway = strings.TrimSpace(gateway)
	if gateway == "" {
		return netip.Addr{}, nil
	}
	addr, err := netip.ParseAddr(gateway)
	if err != nil || !addr.Is4() {
		return netip.Addr{}, errors.Validation(map[string]string{"gateway": "must be a valid IPv4 address"})
	}
	if !s.Contains(addr) {
		return netip.Addr{}, errors.Validation(map[string]string{"gateway": "must lie inside " + s.String()})
	}
	return addr, nil
}

func toUint32(a netip.Addr) uint32 {
	b := a.As4()
	return binary.BigEndian.Uint32(b[:])
}

func fromUint32(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}
