package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBloomReserveAddExists(t *testing.T) {
	srv := newTestServer()

	reply, _ := srv.exec("BF.RESERVE", "bf", "0.01", "1000")
	require.Equal(t, "OK", reply.Str)

	reply, _ = srv.exec("BF.ADD", "bf", "hello")
	require.Equal(t, int64(1), reply.Int)

	reply, _ = srv.exec("BF.EXISTS", "bf", "hello")
	require.Equal(t, int64(1), reply.Int)

	reply, _ = srv.exec("BF.EXISTS", "bf", "missing")
	require.Equal(t, int64(0), reply.Int)
}
