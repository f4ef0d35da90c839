package query

import (
	"sort"
	"strconv"
	"strings"
)

// Cursor maps a chain id to the highest block number already delivered
// for that chain. The wire form is dash separated pairs, sorted by chain:
// "1-19000000-10-68000000".
type Cursor map[uint64]uint64

// ParseCursor decodes the wire form. An empty string yields a nil cursor,
// which means "start from the beginning".
func ParseCursor(s string) (Cursor, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, "-")
	if len(parts)%2 != 0 {
		return nil, NewError(ErrCursor, "expected an even number of dash separated fields, got %d", len(parts))
	}
	c := make(Cursor, len(parts)/2)
	for i := 0; i < len(parts); i += 2 {
		chain, err := strconv.ParseUint(parts[i], 10, 64)
		if err != nil {
			return nil, NewError(ErrCursor, "invalid chain id %q", parts[i])
		}
		num, err := strconv.ParseUint(parts[i+1], 10, 64)
		if err != nil {
			return nil, NewError(ErrCursor, "invalid block number %q for chain %d", parts[i+1], chain)
		}
		if _, ok := c[chain]; ok {
			return nil, NewError(ErrCursor, "chain %d listed twice", chain)
		}
		c[chain] = num
	}
	return c, nil
}

// String renders the wire form with chains in ascending order so that a
// cursor round-trips to a stable value.
func (c Cursor) String() string {
	if len(c) == 0 {
		return ""
	}
	chains := make([]uint64, 0, len(c))
	for chain := range c {
		chains = append(chains, chain)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })
	var b strings.Builder
	for i, chain := range chains {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(strconv.FormatUint(chain, 10))
		b.WriteByte('-')
		b.WriteString(strconv.FormatUint(c[chain], 10))
	}
	return b.String()
}

// Merge returns a copy of c moved to the heights in heights. Chains
// present only in heights are added so the next request resumes past the
// snapshot this batch observed. A snapshot below the cursor means the
// stored history shrank after a reorg; the cursor follows it down so the
// replacement blocks are not skipped.
func (c Cursor) Merge(heights map[uint64]uint64) Cursor {
	out := make(Cursor, len(c)+len(heights))
	for chain, num := range c {
		out[chain] = num
	}
	for chain, num := range heights {
		out[chain] = num
	}
	return out
}
