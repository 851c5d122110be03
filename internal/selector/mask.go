package selector

import "strings"

const maskRune = '*'

// MaskEmail renders an address so its owner can recognise it:
// first_last@organization.org becomes f****_l**t@o***********.o**.
func MaskEmail(addr string) string {
	at := strings.LastIndexByte(addr, '@')
	if at <= 0 || at == len(addr)-1 {
		return MaskValue(addr)
	}
	return maskLocal(addr[:at]) + "@" + maskDomain(addr[at+1:])
}

// MaskValue keeps the first and last character of non-email identifiers.
func MaskValue(v string) string {
	runes := []rune(v)
	if len(runes) <= 2 {
		return strings.Repeat(string(maskRune), len(runes))
	}
	out := make([]rune, len(runes))
	for i := range runes {
		switch i {
		case 0, len(runes) - 1:
			out[i] = runes[i]
		default:
			out[i] = maskRune
		}
	}
	return string(out)
}

// maskLocal keeps separators, the first character of every segment and the
// final character.
func maskLocal(local string) string {
	runes := []rune(local)
	out := make([]rune, len(runes))
	segmentStart := true
	for i, r := range runes {
		switch {
		case isLocalSeparator(r):
			out[i] = r
			segmentStart = true
			continue
		case segmentStart, i == len(runes)-1:
			out[i] = r
		default:
			out[i] = maskRune
		}
		segmentStart = false
	}
	return string(out)
}

// maskDomain keeps the first character of every dot-separated label.
func maskDomain(domain string) string {
	labels := strings.Split(domain, ".")
	for i, label := range labels {
		runes := []rune(label)
		for j := 1; j < len(runes); j++ {
			runes[j] = maskRune
		}
		labels[i] = string(runes)
	}
	return strings.Join(labels, ".")
}

func isLocalSeparator(r rune) bool {
	switch r {
	case '.', '_', '-', '+':
		return true
	}
	return false
}
