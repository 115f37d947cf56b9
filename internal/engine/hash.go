package engine

import "unicode/utf16"

// hashKey implements the bucketing hash shared with other implementations
// of this engine, so the same key buckets identically everywhere: a 32-bit
// signed accumulator seeded at 0, updated per UTF-16 code unit as
// h = (h << 5) - h + code with wrap-on-overflow, absolute value at the end.
// The absolute value is taken in 64 bits so an accumulator of MinInt32
// yields 2147483648 rather than overflowing.
//
// Cheap and evenly distributing; not cryptographic.
func hashKey(s string) int64 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}

// Bucket maps a key deterministically onto 0..99.
func Bucket(key string) int {
	return int(hashKey(key) % 100)
}
