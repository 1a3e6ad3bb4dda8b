package query

import (
	"regexp"
)

var tokenPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Tokens substitutes ${name} placeholders. Unknown placeholders stay intact.
type Tokens map[string]string

// ReplaceTokens implements TokenResolver.
func (t Tokens) ReplaceTokens(template string) string {
	return tokenPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[2 : len(match)-1]
		if v, ok := t[name]; ok {
			return v
		}
		return match
	})
}

// TokensFromMarker exposes last sync times under the names import templates
// use: ${dih.last_index_time} and ${dih.<name>.last_index_time}, where name is
// the prefix of the qualified marker key.
func TokensFromMarker(name, qualified, unqualified string) Tokens {
	t := Tokens{"dih.last_index_time": unqualified}
	if name != "" {
		value := qualified
		if value == "" {
			value = unqualified
		}
		t["dih."+name+".last_index_time"] = value
	}
	return t
}
