package structure

import "strings"

const upperhex = "0123456789ABCDEF"

// EncodeFileName percent-encodes name the way a browser's encodeURI does:
// ASCII letters, digits and ;,/?:@&=+$-_.!~*'()# are kept, every other byte of
// the UTF-8 encoding becomes %XX.
func EncodeFileName(name string) string {
	n := 0
	for i := 0; i < len(name); i++ {
		if !keepURIByte(name[i]) {
			n++
		}
	}
	if n == 0 {
		return name
	}

	var b strings.Builder
	b.Grow(len(name) + 2*n)
	for i := 0; i < len(name); i++ {
		c := name[i]
		if keepURIByte(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0x0f])
	}
	return b.String()
}

func keepURIByte(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte(";,/?:@&=+$-_.!~*'()#", c) >= 0
}
