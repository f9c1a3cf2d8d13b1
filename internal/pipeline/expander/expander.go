// Package expander turns raw target expressions (addresses, CIDR blocks,
// ranges, URLs and hostnames) into a flat list of scan targets.
//
// IPv6 literals are not supported: the port-stripping step splits on the
// first ':' and would mangle them.
package expander

import (
	"net/netip"
	"strings"

	"bytemomo/autopen/internal/domain"

	"go4.org/netipx"
)

// Expand normalizes and expands every line, returning the targets with
// duplicates removed in first-seen order. Malformed lines never fail: at
// worst they are passed through as hostnames.
func Expand(lines []string) []string {
	var out []string
	for _, line := range lines {
		out = append(out, ExpandLine(line)...)
	}
	return domain.Dedupe(out)
}

// ExpandLine expands a single expression. Blank and comment lines yield nil.
func ExpandLine(line string) []string {
	s := Normalize(line)
	if s == "" {
		return nil
	}

	if strings.Contains(s, "-") {
		if r, ok := parseRange(s); ok {
			return enumerate(r.From(), r.To())
		}
	}

	if p, err := netip.ParsePrefix(s); err == nil {
		return prefixHosts(p.Masked())
	}

	if a, err := netip.ParseAddr(s); err == nil {
		return []string{a.String()}
	}

	return []string{s}
}

// Normalize strips the scheme, path and port from an expression. A
// "/<bits>" suffix is kept on scheme-less input so CIDR blocks survive.
func Normalize(line string) string {
	s := strings.TrimSpace(line)
	if s == "" || strings.HasPrefix(s, "#") {
		return ""
	}

	hadScheme := false
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
		hadScheme = true
	}

	if i := strings.Index(s, "/"); i >= 0 {
		if hadScheme || !isDecimal(s[i+1:]) {
			s = s[:i]
		}
	}

	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	return s
}

// parseRange accepts "A.B.C.D-E.F.G.H" and "A.B.C.D-N". Ranges whose
// bounds are reversed are rejected.
func parseRange(s string) (netipx.IPRange, bool) {
	left, right, _ := strings.Cut(s, "-")

	start, err := netip.ParseAddr(left)
	if err != nil {
		return netipx.IPRange{}, false
	}

	var end netip.Addr
	if strings.Contains(right, ".") {
		end, err = netip.ParseAddr(right)
	} else {
		octets := strings.Split(left, ".")
		if len(octets) != 4 {
			return netipx.IPRange{}, false
		}
		end, err = netip.ParseAddr(strings.Join(append(octets[:3], right), "."))
	}
	if err != nil {
		return netipx.IPRange{}, false
	}

	r := netipx.IPRangeFrom(start, end)
	if !r.IsValid() {
		return netipx.IPRange{}, false
	}
	return r, true
}

// prefixHosts lists the usable hosts of a block: network and broadcast
// are excluded unless the block is a /31 or /32 (or the IPv6 equivalents).
func prefixHosts(p netip.Prefix) []string {
	r := netipx.RangeOfPrefix(p)
	from, to := r.From(), r.To()
	if p.Addr().BitLen()-p.Bits() >= 2 {
		from, to = from.Next(), to.Prev()
	}
	return enumerate(from, to)
}

func enumerate(from, to netip.Addr) []string {
	var out []string
	for a := from; a.IsValid() && a.Compare(to) <= 0; a = a.Next() {
		out = append(out, a.String())
		if a == to {
			break
		}
	}
	return out
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
