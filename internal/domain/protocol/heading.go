package protocol

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// headingRe matches a numbered heading line such as "5.2 Exclusion Criteria".
var headingRe = regexp.MustCompile(`(?m)^(\d+(?:\.\d+)*)[ \t]+([A-Z][A-Za-z \t():-]*)[ \t]*\r?$`)

// Heading is a numbered section heading. Start is the rune offset of the
// heading line.
type Heading struct {
	Number string
	Title  string
	Depth  int
	Start  int
}

// Headings returns the numbered headings of text in document order.
// Top-level headings ("3 ELIGIBILITY") must be upper case; deeper ones
// ("3.1 Inclusion Criteria") may use any case.
func Headings(text string) []Heading {
	var out []Heading
	runeOff, byteOff := 0, 0
	for _, m := range headingRe.FindAllStringSubmatchIndex(text, -1) {
		number := text[m[2]:m[3]]
		title := strings.TrimSpace(text[m[4]:m[5]])
		depth := strings.Count(number, ".") + 1
		if depth == 1 && !upperTitle(title) {
			continue
		}
		runeOff += utf8.RuneCountInString(text[byteOff:m[0]])
		byteOff = m[0]
		out = append(out, Heading{Number: number, Title: title, Depth: depth, Start: runeOff})
	}
	return out
}

func upperTitle(title string) bool {
	letters := 0
	for _, r := range title {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters > 0
}

// SectionPath names the section that contains rune offset off, joining the
// titles of its ancestors: "ELIGIBILITY: Exclusion Criteria". Empty before
// the first heading.
func SectionPath(heads []Heading, off int) string {
	at := -1
	for i, h := range heads {
		if h.Start > off {
			break
		}
		at = i
	}
	if at < 0 {
		return ""
	}

	h := heads[at]
	parts := strings.Split(h.Number, ".")
	titles := make([]string, 0, len(parts))
	for d := 1; d < len(parts); d++ {
		prefix := strings.Join(parts[:d], ".")
		// the nearest preceding heading with that number is the ancestor
		for j := at - 1; j >= 0; j-- {
			if heads[j].Number == prefix {
				titles = append(titles, heads[j].Title)
				break
			}
		}
	}
	titles = append(titles, h.Title)
	return strings.Join(titles, ": ")
}

// lastHeadingIn returns the start of the last heading in (lo, hi], or -1.
func lastHeadingIn(heads []Heading, lo, hi int) int {
	best := -1
	for _, h := range heads {
		if h.Start > hi {
			break
		}
		if h.Start > lo {
			best = h.Start
		}
	}
	return best
}
