package setval

import (
	"math/rand/v2"
	"strconv"

	"golang.org/x/exp/slices"
)

// Encoding tags which of the two payloads of a Value is live.
type Encoding uint8

const (
	// IntPacked stores members as a sorted, duplicate-free slice of
	// int64. Only members in canonical decimal form qualify.
	IntPacked Encoding = iota + 1
	// StringTable stores members as a string hash set.
	StringTable
)

// MaxIntPackedEntries is the hard cap on IntPacked cardinality. The
// packed wire format carries a 16-bit length field, so a configured
// limit above this is clamped.
const MaxIntPackedEntries = 1 << 16

// ParseInt parses member as a canonical signed 64-bit decimal integer.
// Canonical means the exact text strconv.FormatInt would produce: no
// leading zeros, no '+', no "-0". Reports false for anything else.
func ParseInt(member string) (int64, bool) {
	n, err := strconv.ParseInt(member, 10, 64)
	if err != nil {
		return 0, false
	}
	if strconv.FormatInt(n, 10) != member {
		return 0, false
	}
	return n, true
}

// AllInts reports whether every member parses as a canonical integer,
// which is how the initial encoding of a new set is chosen.
func AllInts(members []string) bool {
	for _, m := range members {
		if _, ok := ParseInt(m); !ok {
			return false
		}
	}
	return true
}

// ClampIntLimit bounds a host-configured IntPacked entry limit to the
// format's hard cap. Non-positive limits mean "format cap only".
func ClampIntLimit(limit int) int {
	if limit <= 0 || limit > MaxIntPackedEntries {
		return MaxIntPackedEntries
	}
	return limit
}

// Value is the in-place representation of one set key.
//
// Exactly one payload is live, selected by the encoding tag. The
// encoding moves only from IntPacked to StringTable, never back: once a
// set has seen a non-integer member (or outgrown the packed limit) it
// stays string-encoded even if every remaining member is numeric.
type Value struct {
	enc  Encoding
	ints []int64             // live iff enc == IntPacked; sorted, unique
	strs map[string]struct{} // live iff enc == StringTable
}

// New creates an empty set value with the given initial encoding.
func New(enc Encoding) *Value {
	v := &Value{enc: enc}
	if enc == StringTable {
		v.strs = make(map[string]struct{})
	}
	return v
}

// Encoding returns the current encoding tag.
func (v *Value) Encoding() Encoding { return v.enc }

// Size returns the number of members.
func (v *Value) Size() int {
	if v.enc == IntPacked {
		return len(v.ints)
	}
	return len(v.strs)
}

// Add inserts members, returning how many were newly added (duplicates
// do not count). While IntPacked, the first member that fails to parse
// as a canonical integer, or whose insertion pushes the cardinality past
// intLimit, converts the whole value to StringTable; insertion then
// continues in the new encoding without losing anything already stored.
func (v *Value) Add(members []string, intLimit int) int {
	added := 0

	if v.enc == IntPacked {
		limit := ClampIntLimit(intLimit)
		fits := true

		for _, m := range members {
			inserted, ok := v.addInt(m, limit)
			if inserted {
				added++
			}
			if !ok {
				v.convertToStrings()
				fits = false
				break
			}
		}
		if fits {
			return added
		}
	}

	// Re-offering already-inserted members is harmless: they are
	// present after conversion and count as duplicates here.
	for _, m := range members {
		if _, dup := v.strs[m]; !dup {
			v.strs[m] = struct{}{}
			added++
		}
	}
	return added
}

// addInt inserts one member into the packed payload. The second result
// reports whether the value still fits the IntPacked encoding; a parse
// failure or a post-insert cardinality above limit means it does not.
func (v *Value) addInt(member string, limit int) (inserted, fits bool) {
	n, ok := ParseInt(member)
	if !ok {
		return false, false
	}
	idx, found := slices.BinarySearch(v.ints, n)
	if found {
		return false, true
	}
	v.ints = slices.Insert(v.ints, idx, n)
	return true, len(v.ints) <= limit
}

// convertToStrings consumes the packed payload, re-emitting every stored
// integer as its canonical decimal string. One-way: the value never
// returns to IntPacked.
func (v *Value) convertToStrings() {
	strs := make(map[string]struct{}, len(v.ints))
	for _, n := range v.ints {
		strs[strconv.FormatInt(n, 10)] = struct{}{}
	}
	v.ints = nil
	v.strs = strs
	v.enc = StringTable
}

// Remove deletes members by exact match. Against IntPacked, members that
// are not canonical integers cannot match and are silently skipped.
// Returns the removal count and whether the set is now empty, so the
// caller can delete the key.
func (v *Value) Remove(members []string) (removed int, empty bool) {
	if v.enc == IntPacked {
		for _, m := range members {
			n, ok := ParseInt(m)
			if !ok {
				continue
			}
			if idx, found := slices.BinarySearch(v.ints, n); found {
				v.ints = slices.Delete(v.ints, idx, idx+1)
				removed++
			}
		}
		return removed, len(v.ints) == 0
	}

	for _, m := range members {
		if _, ok := v.strs[m]; ok {
			delete(v.strs, m)
			removed++
		}
	}
	return removed, len(v.strs) == 0
}

// Contains reports membership of a single member.
func (v *Value) Contains(member string) bool {
	if v.enc == IntPacked {
		n, ok := ParseInt(member)
		if !ok {
			return false
		}
		_, found := slices.BinarySearch(v.ints, n)
		return found
	}
	_, ok := v.strs[member]
	return ok
}

// Pop removes and returns min(count, Size()) distinct members, selected
// uniformly at random. When count covers the whole set, every member is
// returned and the value is left empty for the caller to delete.
func (v *Value) Pop(count int) []string {
	if count <= 0 {
		return nil
	}
	size := v.Size()
	if count >= size {
		out := make([]string, 0, size)
		v.ForEach(func(m string) { out = append(out, m) })
		v.ints = nil
		if v.strs != nil {
			v.strs = make(map[string]struct{})
		}
		return out
	}

	out := make([]string, 0, count)
	if v.enc == IntPacked {
		picks := rand.Perm(size)[:count]
		slices.Sort(picks)
		for _, i := range picks {
			out = append(out, strconv.FormatInt(v.ints[i], 10))
		}
		// Delete back to front so earlier indices stay valid.
		for i := len(picks) - 1; i >= 0; i-- {
			v.ints = slices.Delete(v.ints, picks[i], picks[i]+1)
		}
		return out
	}

	members := make([]string, 0, size)
	for m := range v.strs {
		members = append(members, m)
	}
	for _, i := range rand.Perm(size)[:count] {
		out = append(out, members[i])
		delete(v.strs, members[i])
	}
	return out
}

// ForEach visits every member as its canonical string form, integers
// rendered as decimal text. The visit order is unspecified. The visitor
// must not mutate the value.
func (v *Value) ForEach(fn func(member string)) {
	if v.enc == IntPacked {
		for _, n := range v.ints {
			fn(strconv.FormatInt(n, 10))
		}
		return
	}
	for m := range v.strs {
		fn(m)
	}
}

// Members collects every member into a fresh slice via ForEach.
func (v *Value) Members() []string {
	out := make([]string, 0, v.Size())
	v.ForEach(func(m string) { out = append(out, m) })
	return out
}
