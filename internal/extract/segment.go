package extract

import (
	"regexp"
	"strconv"
)

// questionMarker matches a question-number marker: a digit run followed by a
// period and whitespace, at the start of the text or preceded by whitespace.
// Requiring whitespace after the period keeps decimals like "3.14" intact.
var questionMarker = regexp.MustCompile(`(^|\s)(\d+)\.\s+`)

// Block is a contiguous span of document text believed to hold exactly one
// question plus its options and answer marker.
type Block struct {
	Ordinal int    // number parsed from the leading marker, 1-based
	Text    string // span text, including the leading marker
	Offset  int    // byte offset of the marker in the source text
}

// Segment splits raw document text into per-question blocks at number markers.
// Text before the first marker carries no ordinal and is discarded (headers
// and instructions, not questions). Blocks come back in document order; final
// ordering is decided later by Assemble from the parsed ordinals.
func Segment(raw string) []Block {
	locs := questionMarker.FindAllStringSubmatchIndex(raw, -1)
	blocks := make([]Block, 0, len(locs))
	for i, m := range locs {
		// m[4]:m[5] is the digit group.
		n, err := strconv.Atoi(raw[m[4]:m[5]])
		if err != nil || n < 1 {
			continue
		}
		end := len(raw)
		if i+1 < len(locs) {
			end = locs[i+1][4]
		}
		blocks = append(blocks, Block{Ordinal: n, Text: raw[m[4]:end], Offset: m[4]})
	}
	return blocks
}
