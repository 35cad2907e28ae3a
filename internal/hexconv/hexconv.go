package hexconv

// Halfbyte maps an ASCII character to its hexadecimal value. Non-hex characters are
// mapped to 0xFF.
var Halfbyte = func() (table [256]byte) {
	for i := range table {
		table[i] = 0xFF
	}

	for c := '0'; c <= '9'; c++ {
		table[c] = byte(c - '0')
	}

	for c := 'a'; c <= 'f'; c++ {
		table[c] = byte(c-'a') + 10
		table[c-'a'+'A'] = byte(c-'a') + 10
	}

	return table
}()

const digits = "0123456789abcdef"

// Append appends the lowercase hex representation of b.
func Append(dst, b []byte) []byte {
	for _, c := range b {
		dst = append(dst, digits[c>>4], digits[c&0xF])
	}

	return dst
}
