// Package protocol splits protocol text into overlapping extraction windows.
package protocol

import "unicode"

// Default window settings.
const (
	DefaultChunkChars   = 2200
	DefaultChunkOverlap = 200
)

// Window is one contiguous slice of a protocol document.
// Start and End are rune offsets into the source text. Section is the
// heading path the window starts in, empty when the text has no headings
// before Start.
type Window struct {
	Index   int
	Start   int
	End     int
	Text    string
	Section string
}

// Split cuts text into sequential windows of at most size runes that overlap
// by about overlap runes. A window boundary is moved back to the last
// numbered heading in the second half of the window, else to the last newline,
// else to the last space. Text that fits in one window is returned whole.
// size <= 0 disables splitting.
func Split(text string, size, overlap int) []Window {
	runes := []rune(text)
	n := len(runes)
	heads := Headings(text)
	if size <= 0 || n <= size {
		return []Window{{Index: 0, Start: 0, End: n, Text: text, Section: SectionPath(heads, 0)}}
	}
	overlap = max(0, min(overlap, size/2))

	var out []Window
	start := 0
	for {
		end := min(start+size, n)
		if end < n {
			if h := lastHeadingIn(heads, start+size/2, end); h > 0 {
				end = h
			} else {
				end = snapBack(runes, start+size/2, end)
			}
		}
		out = append(out, Window{
			Index:   len(out),
			Start:   start,
			End:     end,
			Text:    string(runes[start:end]),
			Section: SectionPath(heads, start),
		})
		if end >= n {
			return out
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
}

// snapBack returns the offset just past the last newline in runes[lo:hi],
// else just past the last space, else hi.
func snapBack(runes []rune, lo, hi int) int {
	space := -1
	for i := hi - 1; i >= lo; i-- {
		switch {
		case runes[i] == '\n':
			return i + 1
		case space < 0 && unicode.IsSpace(runes[i]):
			space = i
		}
	}
	if space >= 0 {
		return space + 1
	}
	return hi
}
