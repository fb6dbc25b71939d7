package fat

import (
	"fmt"
	"strings"
)

// invalidShortChars are characters forbidden in an 8.3 name, per
// original_source/fatfs/src/layout.rs's short_name_format and spec.md §3.
const invalidShortChars = "\"*+,./:;<=>?[\\]|"

// NeedsLongName reports whether name cannot be represented faithfully as an
// 8.3 short name: too long, mixed case beyond a single displayable case, a
// disallowed character, multiple dots, or a leading/trailing space.
func NeedsLongName(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	base, ext, ok := splitNameExt(name)
	if !ok {
		return true
	}
	if len(base) > 8 || len(ext) > 3 || len(base) == 0 {
		return true
	}
	if strings.ToUpper(name) != name && !isSingleCase(base, ext) {
		return true
	}
	for _, r := range name {
		if r < 0x20 || strings.ContainsRune(invalidShortChars, r) {
			return true
		}
	}
	if strings.HasPrefix(name, " ") || strings.HasSuffix(name, " ") {
		return true
	}
	return false
}

// isSingleCase reports whether base and ext are each either all-upper or
// all-lower (the two cases FAT32's NT-reserved byte can represent without a
// long-name chain, per SPEC_FULL.md's lowercase-short-name feature).
func isSingleCase(base, ext string) bool {
	return (base == strings.ToUpper(base) || base == strings.ToLower(base)) &&
		(ext == strings.ToUpper(ext) || ext == strings.ToLower(ext))
}

// SplitNameExt splits "name.ext" on the last dot, for callers (package
// vfile's Create) that already know NeedsLongName(name) is false and just
// need the two 8.3 segments.
func SplitNameExt(name string) (base, ext string, ok bool) { return splitNameExt(name) }

// splitNameExt splits "name.ext" on the last dot. ok is false only for an
// empty name or a name whose last dot is its first character; characters
// and segment lengths are not checked here.
func splitNameExt(name string) (base, ext string, ok bool) {
	if name == "" {
		return "", "", false
	}
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return name, "", true
	}
	if i == 0 {
		// A leading dot (".bashrc") has no basename under 8.3 rules.
		return "", "", false
	}
	return name[:i], name[i+1:], true
}

// ShortNameCaseBits returns the NT-reserved case bits (CaseLowerBase,
// CaseLowerExt) that let an all-lowercase or mixed-case-by-segment 8.3 name
// round-trip without a long-name chain, per
// original_source/fatfs/src/vfs.rs's create.
func ShortNameCaseBits(base, ext string) byte {
	var bits byte
	if base != "" && base == strings.ToLower(base) && base != strings.ToUpper(base) {
		bits |= CaseLowerBase
	}
	if ext != "" && ext == strings.ToLower(ext) && ext != strings.ToUpper(ext) {
		bits |= CaseLowerExt
	}
	return bits
}

// FormatShortNameRaw renders base/ext (already the basis name, pre-collision
// numbering applied by the caller) into the fixed 11-byte 8.3 field,
// space-padded and uppercased, with the 0xE5-escape for a literal leading
// 0xE5 byte.
func FormatShortNameRaw(base, ext string) [11]byte {
	var raw [11]byte
	for i := range raw {
		raw[i] = ' '
	}
	b := strings.ToUpper(base)
	e := strings.ToUpper(ext)
	copy(raw[0:8], b)
	copy(raw[8:11], e)
	if raw[0] == 0xE5 {
		raw[0] = EntryEscapedE5
	}
	return raw
}

// basisName strips characters illegal in an 8.3 name and uppercases what
// remains, stopping once n bytes have been collected (a multi-byte rune can
// carry it past n), per the "numeric-tail" generation basis
// name algorithm (original_source/fatfs/src/vfs.rs's create via the
// Microsoft "Generate Basis Name" recipe spec.md §3 alludes to).
func basisName(s string, n int) string {
	var b strings.Builder
	for _, r := range s {
		if b.Len() >= n {
			break
		}
		if r == ' ' || r == '.' || strings.ContainsRune(invalidShortChars, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

// GenerateShortName derives an 8.3 short name for longName that does not
// collide with any name in existing, trying the numeric-tail suffixes
// ~1..~9999 (Windows' own ceiling before it falls back to a hashed name).
// Past ~9999 this hashes the long name into the base, which is this
// driver's documented fallback for the spec's open question on exhausted
// numeric tails. The basis name is at most six characters, leaving room for
// the tail, per spec.md §4.3's "first six significant characters... append ~1"
// recipe (e.g. "MyLongFileName.TXT" -> "MYLONG~1.TXT").
func GenerateShortName(longName string, existing map[string]bool) (base, ext string) {
	rawBase, rawExt, ok := splitNameExt(longName)
	if !ok {
		rawBase, rawExt = longName, ""
	}

	basis := basisName(rawBase, 6)
	if basis == "" {
		basis = "_"
	}

	var e string
	if rawExt != "" {
		e = basisName(rawExt, 3)
		if e == "" {
			e = "_"
		}
	}

	for n := 1; n <= 9999; n++ {
		tail := fmt.Sprintf("~%d", n)
		head := basis
		if len(head) > 8-len(tail) {
			head = head[:8-len(tail)]
		}
		candidate := head + tail
		if !existing[candidate+"."+e] {
			return candidate, e
		}
	}

	h := fnv32(longName) & 0xFFFFFF
	tail := fmt.Sprintf("~%06X", h)
	head := basis
	if len(head) > 8-len(tail) {
		head = head[:8-len(tail)]
	}
	if head == "" {
		head = "_"
	}
	return head + tail, e
}

func fnv32(s string) uint32 {
	const prime = 16777619
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}
