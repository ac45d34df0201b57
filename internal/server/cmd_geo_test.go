package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeoAddDistRoundTrip(t *testing.T) {
	srv := newTestServer()

	reply, _ := srv.exec("GEOADD", "cities", "13.361389", "38.115556", "Palermo", "15.087269", "37.502669", "Catania")
	require.Equal(t, int64(2), reply.Int)

	reply, _ = srv.exec("GEOPOS", "cities", "Palermo")
	require.Len(t, reply.Array, 1)
	require.Len(t, reply.Array[0].Array, 2)

	reply, _ = srv.exec("GEODIST", "cities", "Palermo", "Catania", "km")
	require.NotEmpty(t, reply.Str)
}

func TestGeoSearchByRadius(t *testing.T) {
	srv := newTestServer()
	srv.exec("GEOADD", "cities", "13.361389", "38.115556", "Palermo", "15.087269", "37.502669", "Catania")

	reply, _ := srv.exec("GEOSEARCH", "cities", "FROMMEMBER", "Palermo", "BYRADIUS", "400", "km")
	var members []string
	for _, v := range reply.Array {
		members = append(members, v.Str)
	}
	require.Contains(t, members, "Palermo")
	require.Contains(t, members, "Catania")
}
