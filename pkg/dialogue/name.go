package dialogue

import (
	"regexp"
	"strings"
)

var namePatterns = func() []*regexp.Regexp {
	exprs := []string{
		`my name is ([A-Za-z]+)`,
		`\bi am ([A-Za-z]+)`,
		`\bit's ([A-Za-z]+)`,
		`\bthis is ([A-Za-z]+)`,
		`\bcall me ([A-Za-z]+)`,
		`\bname is ([A-Za-z]+)`,
		`\bis ([A-Za-z]+)`,
		`\bme ([A-Za-z]+)`,
		`\bi ([A-Za-z]+)`,
		`\bam ([A-Za-z]+)`,
	}
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}()

var hanOnly = regexp.MustCompile(`^[\x{4e00}-\x{9fa5}]+$`)

// ExtractName pulls a name out of a spoken introduction. Patterns are tried
// from most to least specific. A reply made only of Han characters is taken
// whole as the name.
func ExtractName(response string) (string, bool) {
	for _, re := range namePatterns {
		if m := re.FindStringSubmatch(response); m != nil {
			return m[1], true
		}
	}
	if s := strings.TrimSpace(response); hanOnly.MatchString(s) {
		return s, true
	}
	return "", false
}
