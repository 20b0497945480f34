package escpos

// printable holds 0x20..0x7E plus TAB, LF, VT, FF and CR.
var printable = func() (set [256]bool) {
	for c := 0x20; c <= 0x7E; c++ {
		set[c] = true
	}
	for _, c := range []byte{'\t', '\n', '\v', '\f', '\r'} {
		set[c] = true
	}
	return set
}()

// IsPrintable reports whether b may appear in decoded text.
func IsPrintable(b byte) bool {
	return printable[b]
}

// Printable reports whether every byte of p is printable. An empty run is
// printable.
func Printable(p []byte) bool {
	for _, b := range p {
		if !printable[b] {
			return false
		}
	}
	return true
}
