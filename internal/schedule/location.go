package schedule

import "regexp"

// locationRe matches either a labeled room ("Sala B204", "Sala I-105") or a
// bare building-letter/room-number token ("B-204"). Kept as one alternation
// so the first match in the title wins regardless of which form it takes.
var locationRe = regexp.MustCompile(`(Sala\s+[A-Za-z0-9\-]+|[A-Z]-\d{2,3})`)

// ExtractLocation scans already-stripped title text for a room token and
// returns the first match, or "" when none is found. This is a heuristic:
// the portal embeds the room inside the title markup with no dedicated
// field, so false negatives (and the odd false positive) are expected.
func ExtractLocation(title string) string {
	return locationRe.FindString(title)
}
