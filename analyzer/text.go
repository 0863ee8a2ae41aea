package analyzer

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// Elements whose text never counts as page content
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

// Phrasing elements flow inside a line; every other element breaks words
var inlineElements = map[string]bool{
	"a": true, "abbr": true, "b": true, "bdi": true, "bdo": true, "cite": true,
	"code": true, "data": true, "del": true, "dfn": true, "em": true, "font": true,
	"i": true, "ins": true, "kbd": true, "label": true, "mark": true, "q": true,
	"s": true, "samp": true, "small": true, "span": true, "strong": true, "sub": true,
	"sup": true, "time": true, "tt": true, "u": true, "var": true,
}

// collectText returns the visible text under n with whitespace collapsed.
// Inline markup keeps its text attached to its neighbours, so Hel<b>lo</b>
// stays one word; block elements and <br> separate words.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			sb.WriteString(node.Data)
			return
		case html.ElementNode:
			if skippedElements[node.Data] {
				return
			}
			if !inlineElements[node.Data] {
				sb.WriteByte(' ')
				defer sb.WriteByte(' ')
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// Tokenize splits text into lower-case word tokens. Apostrophes and
// hyphens inside a word are kept; all other punctuation separates words.
func Tokenize(text string) []string {
	var tokens []string
	var cur []rune
	flush := func() {
		word := strings.Trim(string(cur), "'-")
		if word != "" {
			tokens = append(tokens, word)
		}
		cur = cur[:0]
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur = append(cur, r)
		case (r == '\'' || r == '’' || r == '-') && len(cur) > 0:
			if r == '’' {
				r = '\''
			}
			cur = append(cur, r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// countPhrase counts whole-word occurrences of phrase in tokens
func countPhrase(tokens, phrase []string) int {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return 0
	}
	n := 0
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		match := true
		for j, p := range phrase {
			if tokens[i+j] != p {
				match = false
				break
			}
		}
		if match {
			n++
		}
	}
	return n
}

// TermCount pairs a term with its occurrence count
type TermCount struct {
	Term  string `json:"word"`
	Count int    `json:"count"`
}

// SortTerms orders terms by count descending, then alphabetically
func SortTerms(terms []TermCount) {
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})
}

// deriveTerms finds the most frequent unigrams, bigrams and trigrams of a
// token stream. N-grams may not start or end on a stopword.
func deriveTerms(tokens []string, minCount, limit int) []TermCount {
	counts := make(map[string]int)
	for i, tok := range tokens {
		if len([]rune(tok)) >= 3 && !isStopword(tok) {
			counts[tok]++
		}
		for size := 2; size <= 3; size++ {
			if i+size > len(tokens) {
				break
			}
			gram := tokens[i : i+size]
			if isStopword(gram[0]) || isStopword(gram[size-1]) {
				continue
			}
			counts[strings.Join(gram, " ")]++
		}
	}

	terms := make([]TermCount, 0, len(counts))
	for term, c := range counts {
		if c >= minCount {
			terms = append(terms, TermCount{Term: term, Count: c})
		}
	}
	SortTerms(terms)
	if limit > 0 && len(terms) > limit {
		terms = terms[:limit]
	}
	return terms
}

func isStopword(w string) bool {
	return stopwords[w]
}

var stopwords = func() map[string]bool {
	words := strings.Fields(`a about above after again against all am an and any are as at be
		because been before being below between both but by can could did do does doing down
		during each few for from further had has have having he her here hers herself him
		himself his how i if in into is it its itself just me more most my myself no nor not
		now of off on once only or other our ours ourselves out over own same she should so
		some such than that the their theirs them themselves then there these they this those
		through to too under until up very was we were what when where which while who whom
		why will with would you your yours yourself yourselves also get got may might must
		shall us via vs it's don't can't won't i'm you're we're they're`)
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}()
