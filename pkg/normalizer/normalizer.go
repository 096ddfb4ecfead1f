// Package normalizer implements the Target Normalizer (§4.1): a pure
// function cleaning user-supplied target strings, stripping URL schemes and
// trailing slashes, and rejecting private ranges.
//
// Grounded on original_source/webserver/app/api/routes/scan.py's
// clean_target_list/is_private_ip/is_ipv4_range/is_netblock_cidr, rewritten
// around Go's net/netip and net/url instead of Python's ipaddress/urlparse —
// the idiomatic Go tool for this, not a third-party dependency (see
// DESIGN.md).
package normalizer

import (
	"net/netip"
	"net/url"
	"strconv"
	"strings"
)

// Normalize cleans and deduplicates a raw target list, preserving first
// occurrence order. It never errors — malformed input is kept as-is (the
// external scanner will reject it).
func Normalize(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))

	for _, r := range raw {
		clean, ok := normalizeOne(r)
		if !ok {
			continue
		}
		if seen[clean] {
			continue
		}
		seen[clean] = true
		out = append(out, clean)
	}
	return out
}

func normalizeOne(raw string) (string, bool) {
	s := raw

	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		stripped := strings.TrimPrefix(strings.TrimPrefix(s, "https://"), "http://")
		if u, err := url.Parse(s); err == nil && u.Host != "" {
			s = u.Host
		} else if idx := strings.IndexByte(stripped, '/'); idx >= 0 {
			s = stripped[:idx]
		} else {
			s = stripped
		}
	}

	s = strings.TrimSuffix(s, "/")

	if s == "" {
		return "", false
	}

	if prefix, err := netip.ParsePrefix(s); err == nil {
		if isPrivateAddr(prefix.Addr()) {
			return "", false
		}
		return s, true
	}

	if lo, hi, ok := parseRange(s); ok {
		if isPrivateAddr(lo) || isPrivateAddr(hi) {
			return "", false
		}
		return s, true
	}

	if addr, err := netip.ParseAddr(s); err == nil {
		if isPrivateAddr(addr) {
			return "", false
		}
		return s, true
	}

	return s, true
}

// parseRange recognizes "A.B.C.D-E" and "A.B.C.D-A.B.C.E" range forms.
func parseRange(s string) (lo, hi netip.Addr, ok bool) {
	idx := strings.LastIndex(s, "-")
	if idx < 0 {
		return netip.Addr{}, netip.Addr{}, false
	}
	left, right := s[:idx], s[idx+1:]

	loAddr, err := netip.ParseAddr(left)
	if err != nil {
		return netip.Addr{}, netip.Addr{}, false
	}

	// "A.B.C.D-E" form: right is a bare last octet.
	if n, err := strconv.Atoi(right); err == nil && n >= 0 && n <= 255 {
		parts := strings.Split(left, ".")
		if len(parts) != 4 {
			return netip.Addr{}, netip.Addr{}, false
		}
		hiStr := strings.Join(parts[:3], ".") + "." + right
		hiAddr, err := netip.ParseAddr(hiStr)
		if err != nil {
			return netip.Addr{}, netip.Addr{}, false
		}
		return loAddr, hiAddr, true
	}

	// "A.B.C.D-A.B.C.E" form: right is a full address.
	hiAddr, err := netip.ParseAddr(right)
	if err != nil {
		return netip.Addr{}, netip.Addr{}, false
	}
	return loAddr, hiAddr, true
}

// isPrivateAddr reports RFC1918, loopback, and link-local addresses.
func isPrivateAddr(addr netip.Addr) bool {
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast()
}
