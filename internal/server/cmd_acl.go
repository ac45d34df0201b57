package server

import (
	"strings"

	"github.com/spineldb/spineldb/internal/acl"
	"github.com/spineldb/spineldb/internal/dispatch"
	"github.com/spineldb/spineldb/internal/resp"
)

// registerACL wires the ACL subcommands of spec.md §4.9. WHOAMI needs
// the calling session's identity, which lives outside ExecContext, so
// it is handled directly in session.go's handle() alongside the other
// connection-scoped commands; this file covers the database-level ones.
func registerACL(r *dispatch.Registry) {
	r.Register(&dispatch.Descriptor{Name: "ACL", Arity: -2, Keys: dispatch.NoKeys, Handler: cmdACL})
}

func cmdACL(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	sub := strings.ToUpper(ctx.Args[1])
	switch sub {
	case "LIST":
		var out []resp.Value
		for _, u := range srv.ACL.ListUsers() {
			out = append(out, resp.BulkString(formatACLUser(u)))
		}
		return resp.Array(out...), nil, nil
	case "CAT":
		return resp.Array(resp.BulkString("read"), resp.BulkString("write"), resp.BulkString("admin")), nil, nil
	case "SETUSER":
		if len(ctx.Args) < 3 {
			return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "wrong number of arguments")
		}
		return cmdACLSetUser(srv, ctx.Args[2], ctx.Args[3:])
	case "DELUSER":
		n := 0
		for _, name := range ctx.Args[2:] {
			if _, ok := srv.ACL.GetUser(name); ok {
				srv.ACL.DeleteUser(name)
				n++
			}
		}
		return intReply(n), ctx.Args, nil
	default:
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "unknown ACL subcommand %q", sub)
	}
}

func formatACLUser(u *acl.User) string {
	var b strings.Builder
	b.WriteString("user ")
	b.WriteString(u.Name)
	if u.Enabled {
		b.WriteString(" on")
	} else {
		b.WriteString(" off")
	}
	if u.NoPass {
		b.WriteString(" nopass")
	}
	for _, r := range u.Rules {
		b.WriteByte(' ')
		b.WriteString(string(r))
	}
	return b.String()
}

func cmdACLSetUser(srv *Server, name string, tokens []string) (resp.Value, []string, error) {
	u, ok := srv.ACL.GetUser(name)
	if !ok {
		u = &acl.User{Name: name}
	}
	for _, tok := range tokens {
		switch {
		case tok == "on":
			u.Enabled = true
		case tok == "off":
			u.Enabled = false
		case tok == "nopass":
			u.NoPass = true
			u.PasswordHash = ""
		case strings.HasPrefix(tok, ">"):
			hash, err := acl.HashPassword(tok[1:])
			if err != nil {
				return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "could not hash password: %v", err)
			}
			u.PasswordHash = hash
			u.NoPass = false
		default:
			u.Rules = append(u.Rules, acl.Rule(tok))
		}
	}
	srv.ACL.SetUser(u)
	return resp.SimpleString("OK"), nil, nil
}
