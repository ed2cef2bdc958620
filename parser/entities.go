package parser

import "strings"

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&#x27;", "'",
	"&#x2F;", "/",
)

// DecodeEntities replaces the HTML entities the source site leaks into
// attribute values. Decoding repeats until nothing changes, so
// DecodeEntities(DecodeEntities(s)) == DecodeEntities(s) for every s,
// including double-encoded input such as "&amp;amp;".
func DecodeEntities(s string) string {
	for {
		next := entityReplacer.Replace(s)
		if next == s {
			return s
		}
		s = next
	}
}

// HasEntities reports whether s still carries an entity DecodeEntities
// would replace.
func HasEntities(s string) bool {
	return DecodeEntities(s) != s
}
