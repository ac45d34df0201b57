package server

import (
	"bytes"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/spineldb/spineldb/internal/cache"
	"github.com/spineldb/spineldb/internal/config"
	"github.com/spineldb/spineldb/internal/dispatch"
	"github.com/spineldb/spineldb/internal/resp"
)

// registerCache wires the CACHE.* surface of spec.md §4.10 onto the
// shared cache.Engine. These commands never touch a shard's keyspace
// (the engine keeps its own variant store), so they take no shard
// locks, matching the engine's own note that the stampede coalescer's
// fetch runs without holding any shard lock.
//
// Beyond the core GET/SET/PROXY/PURGE/PURGETAG quartet, this also
// wires the cache subsystem's own lifecycle-management surface from
// core/commands/cache/*.rs: soft (mark-stale-in-place, not delete)
// purging, an advisory manual lock, single-key introspection, global
// stats, runtime policy CRUD, and an origin-only bypass fetch.
func registerCache(r *dispatch.Registry) {
	r.Register(&dispatch.Descriptor{Name: "CACHE.GET", Arity: -2, Keys: dispatch.NoKeys, Handler: cmdCacheGet})
	r.Register(&dispatch.Descriptor{Name: "CACHE.SET", Arity: -3, Keys: dispatch.NoKeys, Handler: cmdCacheSet})
	r.Register(&dispatch.Descriptor{Name: "CACHE.PROXY", Arity: -2, Keys: dispatch.NoKeys, Handler: cmdCacheProxy})
	r.Register(&dispatch.Descriptor{Name: "CACHE.PURGE", Arity: 2, Keys: dispatch.NoKeys, Handler: cmdCachePurge})
	r.Register(&dispatch.Descriptor{Name: "CACHE.PURGETAG", Arity: -2, Keys: dispatch.NoKeys, Handler: cmdCachePurgeTag})
	r.Register(&dispatch.Descriptor{Name: "CACHE.SOFTPURGE", Arity: -2, Keys: dispatch.NoKeys, Handler: cmdCacheSoftPurge})
	r.Register(&dispatch.Descriptor{Name: "CACHE.SOFTPURGETAG", Arity: -2, Keys: dispatch.NoKeys, Handler: cmdCacheSoftPurgeTag})
	r.Register(&dispatch.Descriptor{Name: "CACHE.LOCK", Arity: 3, Keys: dispatch.NoKeys, Handler: cmdCacheLock})
	r.Register(&dispatch.Descriptor{Name: "CACHE.UNLOCK", Arity: 2, Keys: dispatch.NoKeys, Handler: cmdCacheUnlock})
	r.Register(&dispatch.Descriptor{Name: "CACHE.INFO", Arity: 2, Keys: dispatch.NoKeys, Handler: cmdCacheInfo})
	r.Register(&dispatch.Descriptor{Name: "CACHE.STATS", Arity: 1, Keys: dispatch.NoKeys, Handler: cmdCacheStats})
	r.Register(&dispatch.Descriptor{Name: "CACHE.POLICY", Arity: -2, Keys: dispatch.NoKeys, Handler: cmdCachePolicy})
	r.Register(&dispatch.Descriptor{Name: "CACHE.BYPASS", Arity: 3, Keys: dispatch.NoKeys, Handler: cmdCacheBypass})
}

// resolvePolicy finds the highest-priority config.CachePolicy whose
// key_pattern matches key and converts it to a cache.Policy; absent a
// match, it falls back to a permissive default so CACHE.SET/GET work
// even with no policies configured. Policies are read from srv.Policies
// rather than the static srv.Cfg.CachePolicies slice so CACHE.POLICY
// SET/DEL take effect immediately.
func resolvePolicy(srv *Server, key string) (config.CachePolicy, cache.Policy) {
	best, found := srv.Policies.Match(key, func(pattern, key string) bool {
		ok, _ := path.Match(pattern, key)
		return ok
	})
	if !found {
		best = config.CachePolicy{Name: "default", TTL: 60 * time.Second, SWR: 30 * time.Second, Grace: 5 * time.Minute}
	}
	return best, cache.Policy{
		Name:         best.Name,
		TTL:          best.TTL,
		SWR:          best.SWR,
		Grace:        best.Grace,
		NegativeTTL:  best.NegativeTTL,
		Tags:         best.Tags,
		VaryOn:       best.VaryOn,
		MaxSizeBytes: best.MaxSizeBytes,
		ForceDisk:    best.ForceDisk,
	}
}

// parseHeaderOpts scans a CACHE.GET/CACHE.PROXY option tail for a
// HEADERS name value [name value...] clause, used as the request
// headers cache.Engine hashes variants against.
func parseHeaderOpts(tokens []string) map[string][]string {
	headers := map[string][]string{}
	for i := 0; i < len(tokens); i++ {
		if strings.ToUpper(tokens[i]) == "HEADERS" {
			for j := i + 1; j+1 < len(tokens); j += 2 {
				headers[tokens[j]] = append(headers[tokens[j]], tokens[j+1])
			}
			break
		}
	}
	return headers
}

func entryReply(e *cache.Entry) resp.Value {
	var headerPairs []resp.Value
	for k, vs := range e.Headers {
		for _, v := range vs {
			headerPairs = append(headerPairs, resp.BulkString(k), resp.BulkString(v))
		}
	}
	body := e.Body
	return resp.Array(
		resp.Integer(int64(e.StatusCode)),
		resp.Array(headerPairs...),
		bulkOrNil(body),
	)
}

func cmdCacheGet(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	key := ctx.Args[1]
	opts := ctx.Args[2:]
	_, policy := resolvePolicy(srv, key)
	headers := parseHeaderOpts(opts)

	entry, state := srv.Cache.Lookup(key, policy, headers, time.Now())
	if entry == nil || state == cache.Expired {
		return resp.NullArray(), nil, nil
	}
	return entryReply(entry), nil, nil
}

func cmdCacheSet(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	key, value := ctx.Args[1], ctx.Args[2]
	_, policy := resolvePolicy(srv, key)

	tokens := ctx.Args[3:]
	for i := 0; i < len(tokens); i++ {
		switch strings.ToUpper(tokens[i]) {
		case "TTL":
			if i+1 < len(tokens) {
				if n, err := parseInt(tokens[i+1]); err == nil {
					policy.TTL = time.Duration(n) * time.Second
				}
				i++
			}
		case "SWR":
			if i+1 < len(tokens) {
				if n, err := parseInt(tokens[i+1]); err == nil {
					policy.SWR = time.Duration(n) * time.Second
				}
				i++
			}
		case "GRACE":
			if i+1 < len(tokens) {
				if n, err := parseInt(tokens[i+1]); err == nil {
					policy.Grace = time.Duration(n) * time.Second
				}
				i++
			}
		case "TAGS":
			var tags []string
			for i+1 < len(tokens) && !isCacheOptionKeyword(tokens[i+1]) {
				i++
				tags = append(tags, tokens[i])
			}
			policy.Tags = tags
		case "REVALIDATE-URL":
			if i+1 < len(tokens) {
				i++
			}
		case "FORCE-DISK":
			policy.ForceDisk = true
		}
	}

	if _, err := srv.Cache.Store(key, policy, http.StatusOK, nil, []byte(value)); err != nil {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "cache store failed: %v", err)
	}
	return resp.SimpleString("OK"), nil, nil
}

func isCacheOptionKeyword(tok string) bool {
	switch strings.ToUpper(tok) {
	case "TTL", "SWR", "GRACE", "TAGS", "REVALIDATE-URL", "FORCE-DISK", "HEADERS":
		return true
	default:
		return false
	}
}

func cmdCacheProxy(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	key := ctx.Args[1]
	rest := ctx.Args[2:]

	url := key
	if len(rest) > 0 && !isCacheOptionKeyword(rest[0]) {
		url = rest[0]
		rest = rest[1:]
	}
	_, policy := resolvePolicy(srv, key)
	headers := parseHeaderOpts(rest)

	entry, _, err := srv.Cache.GetOrFetch(key, policy, headers, &httpFetcher{url: url}, time.Now())
	if err != nil {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "origin fetch failed: %v", err)
	}
	return entryReply(entry), nil, nil
}

func cmdCachePurge(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	srv.Cache.Purge(ctx.Args[1])
	return resp.SimpleString("OK"), nil, nil
}

func cmdCachePurgeTag(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	n := 0
	for _, tag := range ctx.Args[1:] {
		srv.Cache.PurgeTag(tag)
		n++
	}
	return intReply(n), nil, nil
}

// cmdCacheSoftPurge implements CACHE.SOFTPURGE: unlike CACHE.PURGE it
// marks every variant of each key as stale in place rather than
// deleting it outright, so a concurrent GetOrFetch whose refetch fails
// can still fall back to the old body during Grace.
func cmdCacheSoftPurge(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	n := 0
	for _, key := range ctx.Args[1:] {
		if srv.Cache.SoftPurge(key) > 0 {
			n++
		}
	}
	return intReply(n), nil, nil
}

// cmdCacheSoftPurgeTag implements CACHE.SOFTPURGETAG: the tag-scoped
// counterpart of CACHE.SOFTPURGE, scanning every stored key's variants
// for the given tags and marking any match stale in place.
func cmdCacheSoftPurgeTag(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	n := 0
	for _, tag := range ctx.Args[1:] {
		n += srv.Cache.SoftPurgeTag(tag)
	}
	return intReply(n), nil, nil
}

// cmdCacheLock implements CACHE.LOCK key ttl_seconds: an advisory,
// non-enforcing per-key lock an external coordinator (e.g. a prewarm
// job) can use to signal "don't refetch this key right now".
func cmdCacheLock(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	ttlSeconds, err := parseInt(ctx.Args[2])
	if err != nil || ttlSeconds < 0 {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "invalid ttl_seconds %q", ctx.Args[2])
	}
	srv.Cache.Locks().Lock(ctx.Args[1], time.Duration(ttlSeconds)*time.Second, time.Now())
	return resp.SimpleString("OK"), nil, nil
}

func cmdCacheUnlock(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	removed := srv.Cache.Locks().Unlock(ctx.Args[1])
	return intReply(boolToInt(removed)), nil, nil
}

// cmdCacheInfo implements CACHE.INFO key: per-key introspection over
// every stored variant (ttl/swr/grace windows, tag epochs, and
// per-variant hash/size/storage/last-access detail).
func cmdCacheInfo(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	now := time.Now()
	variants, ok := srv.Cache.PeekVariants(ctx.Args[1])
	if !ok || len(variants) == 0 {
		return resp.NullArray(), nil, nil
	}

	var sample *cache.Entry
	for _, e := range variants {
		sample = e
		break
	}

	ttl := int64(-1)
	if sample.Policy.TTL > 0 {
		if remain := sample.Policy.TTL - now.Sub(sample.StoredAt); remain > 0 {
			ttl = int64(remain.Seconds())
		} else {
			ttl = 0
		}
	}

	fields := []resp.Value{resp.BulkString("ttl"), resp.Integer(ttl)}
	if sample.Policy.SWR > 0 {
		fields = append(fields, resp.BulkString("swr_ttl"), resp.Integer(int64(sample.Policy.SWR.Seconds())))
	}
	if sample.Policy.Grace > 0 {
		fields = append(fields, resp.BulkString("grace_ttl"), resp.Integer(int64(sample.Policy.Grace.Seconds())))
	}
	if len(sample.Tags) > 0 {
		var tagPairs []resp.Value
		for tag, epoch := range sample.Tags {
			tagPairs = append(tagPairs, resp.BulkString(tag), resp.Integer(int64(epoch)))
		}
		fields = append(fields, resp.BulkString("tags_epoch"), resp.Array(tagPairs...))
	}
	fields = append(fields,
		resp.BulkString("variants_count"), resp.Integer(int64(len(variants))),
		resp.BulkString("vary_on"), resp.BulkString(strings.Join(sample.Policy.VaryOn, ",")),
	)

	var variantVals []resp.Value
	for hash, e := range variants {
		storage := "memory"
		if e.Location == cache.BodyOnDisk {
			storage = "disk"
		}
		v := []resp.Value{
			resp.BulkString("hash"), resp.BulkString(hash),
			resp.BulkString("size"), resp.Integer(e.Size),
			resp.BulkString("storage"), resp.BulkString(storage),
			resp.BulkString("last_accessed_seconds_ago"), resp.Integer(int64(now.Sub(e.LastAccess).Seconds())),
		}
		if e.ETag != "" {
			v = append(v, resp.BulkString("etag"), resp.BulkString(e.ETag))
		}
		if e.LastModified != "" {
			v = append(v, resp.BulkString("last-modified"), resp.BulkString(e.LastModified))
		}
		variantVals = append(variantVals, resp.Array(v...))
	}
	fields = append(fields, resp.BulkString("variants"), resp.Array(variantVals...))

	return resp.Array(fields...), nil, nil
}

// cmdCacheStats implements CACHE.STATS: engine-wide counters plus the
// derived hit ratio and the live variant/policy counts.
func cmdCacheStats(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	snap := srv.Cache.Stats(len(srv.Policies.Names()))
	return resp.Array(
		resp.BulkString("hits"), resp.Integer(int64(snap.Hits)),
		resp.BulkString("misses"), resp.Integer(int64(snap.Misses)),
		resp.BulkString("hit_ratio"), resp.Double(snap.HitRatio),
		resp.BulkString("stale_hits"), resp.Integer(int64(snap.StaleHits)),
		resp.BulkString("revalidations"), resp.Integer(int64(snap.Revalidations)),
		resp.BulkString("evictions"), resp.Integer(int64(snap.Evictions)),
		resp.BulkString("total_variants"), resp.Integer(int64(snap.TotalVariants)),
		resp.BulkString("policies_count"), resp.Integer(int64(snap.PoliciesCount)),
	), nil, nil
}

// cmdCachePolicy implements CACHE.POLICY SET/DEL/GET/LIST: runtime CRUD
// over the policy table resolvePolicy matches requests against, kept
// sorted by descending priority by config.PolicyStore itself.
func cmdCachePolicy(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	sub := strings.ToUpper(ctx.Args[1])
	switch sub {
	case "SET":
		return cmdCachePolicySet(srv, ctx.Args[2:])
	case "DEL":
		if len(ctx.Args) < 3 {
			return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "wrong number of arguments")
		}
		removed, _ := srv.Policies.Del(ctx.Args[2])
		return intReply(boolToInt(removed)), nil, nil
	case "GET":
		if len(ctx.Args) < 3 {
			return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "wrong number of arguments")
		}
		p, ok := srv.Policies.Get(ctx.Args[2])
		if !ok {
			return resp.NullArray(), nil, nil
		}
		return cachePolicyReply(p), nil, nil
	case "LIST":
		var out []resp.Value
		for _, name := range srv.Policies.Names() {
			out = append(out, resp.BulkString(name))
		}
		return resp.Array(out...), nil, nil
	default:
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "unknown CACHE POLICY subcommand %q", sub)
	}
}

// cmdCachePolicySet parses a CACHE.POLICY SET name key_pattern
// url_template [TTL s] [SWR s] [GRACE s] [NEGATIVE_TTL s] [PRIORITY n]
// [COMPRESSION] [FORCE-DISK] [PREWARM] [RESPECT-ORIGIN-HEADERS]
// [TAGS t...|VARY_ON h...] clause, the last of TAGS/VARY_ON consuming
// every remaining token (they're mutually exclusive tails, matching
// the option-parser shape cache_policy.rs uses).
func cmdCachePolicySet(srv *Server, args []string) (resp.Value, []string, error) {
	if len(args) < 3 {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "wrong number of arguments")
	}
	p := config.CachePolicy{Name: args[0], KeyPattern: args[1], URLTemplate: args[2]}

	tokens := args[3:]
	for i := 0; i < len(tokens); i++ {
		switch strings.ToUpper(tokens[i]) {
		case "TTL", "SWR", "GRACE", "NEGATIVE_TTL":
			if i+1 >= len(tokens) {
				return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "syntax error")
			}
			n, err := parseInt(tokens[i+1])
			if err != nil {
				return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "syntax error")
			}
			d := time.Duration(n) * time.Second
			switch strings.ToUpper(tokens[i]) {
			case "TTL":
				p.TTL = d
			case "SWR":
				p.SWR = d
			case "GRACE":
				p.Grace = d
			case "NEGATIVE_TTL":
				p.NegativeTTL = d
			}
			i++
		case "PRIORITY":
			if i+1 >= len(tokens) {
				return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "syntax error")
			}
			n, err := parseInt(tokens[i+1])
			if err != nil {
				return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "syntax error")
			}
			p.Priority = int(n)
			i++
		case "COMPRESSION":
			p.Compression = true
		case "FORCE-DISK":
			p.ForceDisk = true
		case "PREWARM":
			p.Prewarm = true
		case "RESPECT-ORIGIN-HEADERS":
			p.RespectOriginHeader = true
		case "TAGS":
			p.Tags = append([]string(nil), tokens[i+1:]...)
			i = len(tokens)
		case "VARY_ON":
			p.VaryOn = append([]string(nil), tokens[i+1:]...)
			i = len(tokens)
		default:
			return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "syntax error at %q", tokens[i])
		}
	}

	srv.Policies.Set(p)
	return resp.SimpleString("OK"), nil, nil
}

func cachePolicyReply(p config.CachePolicy) resp.Value {
	fields := []resp.Value{
		resp.BulkString("name"), resp.BulkString(p.Name),
		resp.BulkString("key_pattern"), resp.BulkString(p.KeyPattern),
		resp.BulkString("url_template"), resp.BulkString(p.URLTemplate),
		resp.BulkString("priority"), resp.Integer(int64(p.Priority)),
	}
	if p.TTL > 0 {
		fields = append(fields, resp.BulkString("ttl"), resp.Integer(int64(p.TTL.Seconds())))
	}
	if p.SWR > 0 {
		fields = append(fields, resp.BulkString("swr"), resp.Integer(int64(p.SWR.Seconds())))
	}
	if p.Grace > 0 {
		fields = append(fields, resp.BulkString("grace"), resp.Integer(int64(p.Grace.Seconds())))
	}
	if p.NegativeTTL > 0 {
		fields = append(fields, resp.BulkString("negative_ttl"), resp.Integer(int64(p.NegativeTTL.Seconds())))
	}
	if len(p.Tags) > 0 {
		var tagVals []resp.Value
		for _, t := range p.Tags {
			tagVals = append(tagVals, resp.BulkString(t))
		}
		fields = append(fields, resp.BulkString("tags"), resp.Array(tagVals...))
	}
	if len(p.VaryOn) > 0 {
		var varyVals []resp.Value
		for _, v := range p.VaryOn {
			varyVals = append(varyVals, resp.BulkString(v))
		}
		fields = append(fields, resp.BulkString("vary_on"), resp.Array(varyVals...))
	}
	if p.Prewarm {
		fields = append(fields, resp.BulkString("prewarm"), resp.Integer(1))
	}
	if p.RespectOriginHeader {
		fields = append(fields, resp.BulkString("respect_origin_headers"), resp.Integer(1))
	}
	if p.Compression {
		fields = append(fields, resp.BulkString("compression"), resp.Integer(1))
	}
	if p.ForceDisk {
		fields = append(fields, resp.BulkString("force_disk"), resp.Integer(1))
	}
	return resp.Array(fields...)
}

// cmdCacheBypass implements CACHE.BYPASS key url: fetches straight from
// the origin without ever reading from or writing to the cache, unlike
// CACHE.PROXY which always goes through the engine's variant store.
func cmdCacheBypass(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	url := ctx.Args[2]
	fetcher := &httpFetcher{url: url}
	status, _, body, _, err := fetcher.Fetch(cache.FetchContext{})
	if err != nil {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "origin fetch failed: %v", err)
	}
	if status < 200 || status >= 300 {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "origin returned status %d", status)
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "reading origin body: %v", err)
	}
	return resp.BulkString(string(b)), nil, nil
}

// httpFetcher is the net/http-backed cache.Fetcher CACHE.PROXY uses
// to round-trip the origin, kept out of internal/cache itself so that
// package stays free of an HTTP client dependency.
type httpFetcher struct {
	url string
}

func (f *httpFetcher) Fetch(ctx cache.FetchContext) (int, map[string][]string, io.Reader, bool, error) {
	req, err := http.NewRequest(http.MethodGet, f.url, nil)
	if err != nil {
		return 0, nil, nil, false, err
	}
	if ctx.Revalidate {
		if ctx.PriorETag != "" {
			req.Header.Set("If-None-Match", ctx.PriorETag)
		}
		if ctx.PriorLastModified != "" {
			req.Header.Set("If-Modified-Since", ctx.PriorLastModified)
		}
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, nil, false, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotModified {
		return res.StatusCode, nil, nil, true, nil
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, nil, false, err
	}
	return res.StatusCode, res.Header, bytes.NewReader(body), false, nil
}
