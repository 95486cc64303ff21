package selector

import "strings"

// Handle identifies one of the eight resize grips of the selection.
type Handle string

const (
	HandleN  Handle = "n"
	HandleS  Handle = "s"
	HandleE  Handle = "e"
	HandleW  Handle = "w"
	HandleNE Handle = "ne"
	HandleNW Handle = "nw"
	HandleSE Handle = "se"
	HandleSW Handle = "sw"
)

// Handles lists every valid handle.
func Handles() []Handle {
	return []Handle{HandleN, HandleS, HandleE, HandleW, HandleNE, HandleNW, HandleSE, HandleSW}
}

// ParseHandle maps "n", "se", ... (case insensitive) to a Handle.
func ParseHandle(s string) (Handle, bool) {
	h := Handle(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range Handles() {
		if v == h {
			return h, true
		}
	}
	return "", false
}

func (h Handle) north() bool { return strings.ContainsRune(string(h), 'n') }
func (h Handle) south() bool { return strings.ContainsRune(string(h), 's') }
func (h Handle) east() bool  { return strings.ContainsRune(string(h), 'e') }
func (h Handle) west() bool  { return strings.ContainsRune(string(h), 'w') }

// vertical reports whether the handle only moves a horizontal edge.
func (h Handle) vertical() bool { return h == HandleN || h == HandleS }
