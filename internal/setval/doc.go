// Package setval implements the adaptive encoding of one set value.
//
// # Overview
//
// A set whose members are all small decimal integers is stored as a
// sorted int64 slice (IntPacked); anything else uses a string hash set
// (StringTable). The encoding is an explicit sum type: a tag plus
// exactly one live payload, so no code path can read one payload as the
// other.
//
// # Encoding transitions
//
// A value starts in whichever encoding fits its first batch of members.
// The transition IntPacked -> StringTable happens at most once, the
// moment a non-integer member arrives or the packed cardinality limit is
// exceeded, and is irreversible: subsequent removals never shrink a
// StringTable back into IntPacked. Conversion re-emits every stored
// integer as its canonical decimal string, so no member is lost and the
// change is invisible to readers, who only ever see canonical strings
// through ForEach.
//
// # Canonical integers
//
// Only members in canonical decimal form qualify for IntPacked: the
// exact text strconv.FormatInt produces. "007", "+5" and "-0" are
// strings, not integers, which keeps ForEach's rendering a bijection.
//
// # Ownership
//
// A Value is not safe for concurrent use; the owning shard serializes
// access. An empty value is never kept in the store — callers delete the
// key the moment Remove or Pop reports emptiness.
package setval
