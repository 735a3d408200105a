package refoss

import "strings"

// FormatMAC normalises a MAC address to lower-case colon-separated form.
// Twelve hex digits with any (or no) separators are reformatted; anything
// else is returned lower-cased and otherwise unchanged.
func FormatMAC(mac string) string {
	var hex []byte
	for i := 0; i < len(mac); i++ {
		c := mac[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f':
			hex = append(hex, c)
		case c >= 'A' && c <= 'F':
			hex = append(hex, c+('a'-'A'))
		case c == ':' || c == '-' || c == '.':
		default:
			return strings.ToLower(mac)
		}
	}
	if len(hex) != 12 {
		return strings.ToLower(mac)
	}

	out := make([]byte, 0, 17)
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			out = append(out, ':')
		}
		out = append(out, hex[i], hex[i+1])
	}
	return string(out)
}
