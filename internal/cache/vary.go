package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// header names get case-folded via golang.org/x/text/cases the way an
// HTTP-aware component should, rather than a hand-rolled ToLower —
// this is the one job SPEC_FULL.md gives x/text since the teacher
// imports it only transitively.
var foldCaser = cases.Fold()

// VariantHash computes the hash spec.md §4.10 point 1 describes:
// "normalize header names case-insensitively; for set-valued headers,
// hash the sorted set of canonicalized tokens. For unknown Vary
// headers, treat absent as the empty byte-string."
func VariantHash(varyOn []string, requestHeaders map[string][]string) string {
	h := sha256.New()
	sorted := make([]string, len(varyOn))
	copy(sorted, varyOn)
	sort.Strings(sorted)

	for _, header := range sorted {
		folded := foldCaser.String(header)
		h.Write([]byte(folded))
		h.Write([]byte{0})
		h.Write([]byte(canonicalizeHeaderValue(folded, requestHeaders)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalizeHeaderValue(foldedName string, headers map[string][]string) string {
	var raw string
	for k, vs := range headers {
		if foldCaser.String(k) == foldedName && len(vs) > 0 {
			raw = strings.Join(vs, ",")
			break
		}
	}
	if raw == "" {
		return "" // unknown Vary header: absent treated as empty byte-string
	}

	switch foldedName {
	case foldCaser.String("Accept-Encoding"):
		return canonicalTokenSet(raw)
	case foldCaser.String("Accept-Language"):
		return canonicalLanguageSet(raw)
	default:
		return raw
	}
}

// canonicalTokenSet splits a comma-separated header on commas,
// trims and lowercases each token, sorts, and rejoins — the "set of
// canonicalized tokens" spec.md §4.10 asks for Accept-Encoding.
func canonicalTokenSet(raw string) string {
	parts := strings.Split(raw, ",")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t == "" {
			continue
		}
		// strip a q-value suffix ("gzip;q=0.8") before folding.
		if idx := strings.IndexByte(t, ';'); idx >= 0 {
			t = t[:idx]
		}
		tokens = append(tokens, foldCaser.String(strings.TrimSpace(t)))
	}
	sort.Strings(tokens)
	return strings.Join(dedupe(tokens), ",")
}

// canonicalLanguageSet parses each Accept-Language token as a BCP 47
// tag via golang.org/x/text/language, normalizes it to its canonical
// string form, and sorts the resulting set.
func canonicalLanguageSet(raw string) string {
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if idx := strings.IndexByte(t, ';'); idx >= 0 {
			t = t[:idx]
		}
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		tag, err := language.Parse(t)
		if err != nil {
			tags = append(tags, foldCaser.String(t))
			continue
		}
		tags = append(tags, tag.String())
	}
	sort.Strings(tags)
	return strings.Join(dedupe(tags), ",")
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	var last string
	first := true
	for _, s := range sorted {
		if first || s != last {
			out = append(out, s)
			last = s
			first = false
		}
	}
	return out
}
