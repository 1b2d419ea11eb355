package catalog

import "strings"

// Words dropped when generating keywords from a control name
var stopWords = map[string]bool{
	"of": true, "the": true, "and": true, "or": true, "in": true, "on": true,
	"at": true, "to": true, "for": true, "with": true, "by": true,
}

// GenerateKeywords derives keywords from a control name: lower-cased words
// that are not stop words and are longer than two characters.
func GenerateKeywords(name string) []string {
	words := strings.Fields(strings.ToLower(name))
	keywords := make([]string, 0, len(words))
	for _, word := range words {
		if !stopWords[word] && len(word) > 2 {
			keywords = append(keywords, word)
		}
	}
	return keywords
}
