package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProtocol(t *testing.T) {
	p, err := ParseProtocol(" TCP ")
	require.NoError(t, err)
	assert.Equal(t, ProtocolTCP, p)

	p, err = ParseProtocol("udp")
	require.NoError(t, err)
	assert.Equal(t, ProtocolUDP, p)

	_, err = ParseProtocol("sctp")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestParseBackend(t *testing.T) {
	for in, want := range map[string]Backend{"": BackendAuto, "auto": BackendAuto, "io_uring": BackendUring, "uring": BackendUring, "EPOLL": BackendEpoll} {
		got, err := ParseBackend(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseBackend("kqueue")
	assert.Equal(t, ErrCodeInvalidArgument, CodeOf(err))
}

func TestMarshalText(t *testing.T) {
	b, _ := ProtocolTCP.MarshalText()
	assert.Equal(t, "tcp", string(b))
	b, _ = BackendEpoll.MarshalText()
	assert.Equal(t, "epoll", string(b))
}
