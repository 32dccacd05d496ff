package service

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashwaghule/joitex-IVM/pkg/errors"
)

func TestParseSubnet(t *testing.T) {
	tests := []struct {
		cidr   string
		want   string
		usable int
		err    bool
	}{
		{cidr: "10.0.0.0/24", want: "10.0.0.0/24", usable: 254},
		{cidr: "10.0.0.77/24", want: "10.0.0.0/24", usable: 254},
		{cidr: " 192.168.4.0/30 ", want: "192.168.4.0/30", usable: 2},
		{cidr: "192.168.4.6/31", want: "192.168.4.6/31", usable: 2},
		{cidr: "203.0.113.9/32", want: "203.0.113.9/32", usable: 1},
		{cidr: "172.16.0.0/16", want: "172.16.0.0/16", usable: 65534},
		{cidr: "10.0.0.0/15", err: true},
		{cidr: "2001:db8::/64", err: true},
		{cidr: "10.0.0.0", err: true},
		{cidr: "not-a-cidr", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.cidr, func(t *testing.T) {
			s, err := ParseSubnet(tt.cidr)
			if tt.err {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.String())
			assert.Equal(t, tt.usable, s.UsableHosts())
		})
	}
}

func TestSubnet_IsUsable(t *testing.T) {
	s, err := ParseSubnet("10.0.0.0/29")
	require.NoError(t, err)

	assert.False(t, s.IsUsable(netip.MustParseAddr("10.0.0.0")), "network address")
	assert.True(t, s.IsUsable(netip.MustParseAddr("10.0.0.1")))
	assert.True(t, s.IsUsable(netip.MustParseAddr("10.0.0.6")))
	assert.False(t, s.IsUsable(netip.MustParseAddr("10.0.0.7")), "broadcast")
	assert.False(t, s.IsUsable(netip.MustParseAddr("10.0.0.8")), "outside")

	p2p, err := ParseSubnet("10.0.0.2/31")
	require.NoError(t, err)
	assert.True(t, p2p.IsUsable(netip.MustParseAddr("10.0.0.2")))
	assert.True(t, p2p.IsUsable(netip.MustParseAddr("10.0.0.3")))
}

func TestSubnet_Capacity(t *testing.T) {
	s, err := ParseSubnet("10.0.0.0/24")
	require.NoError(t, err)

	assert.Equal(t, 254, s.Capacity(netip.Addr{}))
	assert.Equal(t, 253, s.Capacity(netip.MustParseAddr("10.0.0.1")))
	// A gateway on the network address occupies no host slot
	assert.Equal(t, 254, s.Capacity(netip.MustParseAddr("10.0.0.0")))

	host, err := ParseSubnet("10.0.0.5/32")
	require.NoError(t, err)
	assert.Equal(t, 0, host.Capacity(netip.MustParseAddr("10.0.0.5")))
}

func TestSubnet_LowestFree(t *testing.T) {
	s, err := ParseSubnet("10.0.0.0/29")
	require.NoError(t, err)
	gw := netip.MustParseAddr("10.0.0.1")

	addr, ok := s.LowestFree(nil, gw)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2", addr.String())

	taken := map[netip.Addr]struct{}{
		netip.MustParseAddr("10.0.0.2"): {},
		netip.MustParseAddr("10.0.0.3"): {},
		netip.MustParseAddr("10.0.0.5"): {},
	}
	addr, ok = s.LowestFree(taken, gw)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.4", addr.String())

	taken[netip.MustParseAddr("10.0.0.4")] = struct{}{}
	taken[netip.MustParseAddr("10.0.0.6")] = struct{}{}
	_, ok = s.LowestFree(taken, gw)
	assert.False(t, ok)
}

func TestSubnet_LowestFreeSingleHost(t *testing.T) {
	s, err := ParseSubnet("198.51.100.255/32")
	require.NoError(t, err)

	addr, ok := s.LowestFree(nil, netip.Addr{})
	require.True(t, ok)
	assert.Equal(t, "198.51.100.255", addr.String())

	_, ok = s.LowestFree(map[netip.Addr]struct{}{addr: {}}, netip.Addr{})
	assert.False(t, ok)
}

func TestParseGateway(t *testing.T) {
	s, err := ParseSubnet("10.0.0.0/24")
	require.NoError(t, err)

	gw, err := ParseGateway(s, "")
	require.NoError(t, err)
	assert.False(t, gw.IsValid())

	gw, err = ParseGateway(s, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", gw.String())

	_, err = ParseGateway(s, "10.0.1.1")
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = ParseGateway(s, "gateway")
	assert.True(t, errors.Is(err, errors.ErrValidation))
}
