package server

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spineldb/spineldb/internal/cluster"
	"github.com/spineldb/spineldb/internal/dispatch"
	"github.com/spineldb/spineldb/internal/resp"
)

// registerCluster wires CLUSTER's read-mostly introspection and slot
// administration subcommands, spec.md §4.6.
func registerCluster(r *dispatch.Registry) {
	r.Register(&dispatch.Descriptor{Name: "CLUSTER", Arity: -2, Keys: dispatch.NoKeys, Handler: cmdCluster})
}

func cmdCluster(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	if srv.Cluster == nil {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "this instance has cluster support disabled")
	}
	sub := strings.ToUpper(ctx.Args[1])
	switch sub {
	case "KEYSLOT":
		if len(ctx.Args) < 3 {
			return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "wrong number of arguments")
		}
		return intReply(cluster.Slot(ctx.Args[2])), nil, nil
	case "ADDSLOTS":
		slots, err := parseSlotList(ctx.Args[2:])
		if err != nil {
			return resp.Value{}, nil, err
		}
		srv.Cluster.Table.AddSlots(srv.Cluster.SelfID, slots)
		return resp.SimpleString("OK"), nil, nil
	case "SETSLOT":
		return cmdClusterSetSlot(srv, ctx.Args[2:])
	case "NODES":
		return resp.BulkString(clusterNodesText(srv)), nil, nil
	case "INFO":
		return resp.BulkString(clusterInfoText(srv)), nil, nil
	default:
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "unknown CLUSTER subcommand %q", sub)
	}
}

func parseSlotList(args []string) ([]int, error) {
	slots := make([]int, 0, len(args))
	for _, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return nil, dispatch.NewError(dispatch.KindGeneric, "invalid slot %q", a)
		}
		slots = append(slots, n)
	}
	return slots, nil
}

func cmdClusterSetSlot(srv *Server, args []string) (resp.Value, []string, error) {
	if len(args) < 2 {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "wrong number of arguments")
	}
	slot, err := strconv.Atoi(args[0])
	if err != nil {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "invalid slot %q", args[0])
	}
	switch strings.ToUpper(args[1]) {
	case "MIGRATING":
		if len(args) < 3 {
			return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "MIGRATING needs a target node id")
		}
		srv.Cluster.Table.SetMigrating(slot, args[2])
	case "IMPORTING":
		if len(args) < 3 {
			return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "IMPORTING needs a source node id")
		}
		srv.Cluster.Table.SetImporting(slot, args[2])
	case "NODE":
		if len(args) < 3 {
			return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "NODE needs a node id")
		}
		srv.Cluster.Table.SetOwner(slot, args[2])
	default:
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "unknown SETSLOT mode %q", args[1])
	}
	return resp.SimpleString("OK"), nil, nil
}

func clusterNodesText(srv *Server) string {
	var b strings.Builder
	for _, n := range srv.Cluster.Membership.All() {
		role := "master"
		if n.ID == srv.Cluster.SelfID {
			fmt.Fprintf(&b, "%s %s myself,%s - 0 0 %d connected\n", n.ID, n.Addr, role, srv.Cluster.Membership.Epoch())
			continue
		}
		fmt.Fprintf(&b, "%s %s %s - 0 0 %d connected\n", n.ID, n.Addr, role, srv.Cluster.Membership.Epoch())
	}
	return b.String()
}

func clusterInfoText(srv *Server) string {
	state := "ok"
	if srv.Cluster.ReadOnly() {
		state = "fail"
	}
	return fmt.Sprintf("cluster_enabled:1\r\ncluster_state:%s\r\ncluster_known_nodes:%d\r\ncluster_current_epoch:%d\r\n",
		state, len(srv.Cluster.Membership.All()), srv.Cluster.Membership.Epoch())
}
