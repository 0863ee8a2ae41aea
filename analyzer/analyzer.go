package analyzer

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Rule thresholds
const (
	MinTitleLength       = 10
	MaxTitleLength       = 70
	MinDescriptionLength = 50
	MaxDescriptionLength = 160

	DefaultMinWordCount        = 300
	DefaultAutoKeywordMinCount = 5
	DefaultMaxAutoKeywords     = 50
)

// Options configures the content analysis
type Options struct {
	// Keywords to count in the body text. When empty the keyword set is
	// derived from the page itself.
	Keywords []string

	MinWordCount        int
	AutoKeywordMinCount int
	MaxAutoKeywords     int
}

// Analyzer turns raw HTML into PageData. It performs no I/O and is safe
// for concurrent use.
type Analyzer struct {
	opts     Options
	keywords []keywordPhrase
}

type keywordPhrase struct {
	key    string
	tokens []string
}

// New creates a new Analyzer instance
func New(opts Options) *Analyzer {
	if opts.MinWordCount <= 0 {
		opts.MinWordCount = DefaultMinWordCount
	}
	if opts.AutoKeywordMinCount <= 0 {
		opts.AutoKeywordMinCount = DefaultAutoKeywordMinCount
	}
	if opts.MaxAutoKeywords <= 0 {
		opts.MaxAutoKeywords = DefaultMaxAutoKeywords
	}

	a := &Analyzer{opts: opts}
	seen := make(map[string]bool)
	for _, kw := range opts.Keywords {
		tokens := Tokenize(kw)
		if len(tokens) == 0 {
			continue
		}
		key := strings.Join(tokens, " ")
		if seen[key] {
			continue
		}
		seen[key] = true
		a.keywords = append(a.keywords, keywordPhrase{key: key, tokens: tokens})
	}
	return a
}

// Analyze parses rawHTML fetched from pageURL and derives its content
// metrics and warnings.
func (a *Analyzer) Analyze(rawHTML []byte, pageURL string) (*PageData, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	key, err := normalize(base)
	if err != nil {
		return nil, fmt.Errorf("normalize page url: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	// <base href> overrides the document URL for relative links
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b := resolveLink(base, href); b != nil {
			base = b
		}
	}

	page := &PageData{
		URL:         key,
		Title:       a.extractTitle(doc),
		Description: a.extractDescription(doc),
		Headings:    a.extractHeadings(doc),
		Images:      a.extractImages(doc, base),
	}
	page.InternalLinks, page.ExternalLinks = a.extractLinks(doc, base)

	text := ""
	if body := doc.Find("body"); body.Length() > 0 {
		text = collectText(body.Nodes[0])
	}
	page.text = text
	page.WordCount = len(strings.Fields(text))
	page.KeywordDensity = a.keywordDensity(Tokenize(text))
	if text != "" {
		hash := md5.Sum([]byte(text))
		page.ContentHash = hex.EncodeToString(hash[:])
	}

	page.Warnings = a.checkRules(page)
	return page, nil
}

func (a *Analyzer) extractTitle(doc *goquery.Document) string {
	return strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
}

func (a *Analyzer) extractDescription(doc *goquery.Document) string {
	var desc string
	doc.Find("meta[name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name, _ := s.Attr("name")
		if !strings.EqualFold(strings.TrimSpace(name), "description") {
			return true
		}
		desc, _ = s.Attr("content")
		return false
	})
	return strings.TrimSpace(desc)
}

func (a *Analyzer) extractHeadings(doc *goquery.Document) []Heading {
	var headings []Heading
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		level := int(goquery.NodeName(s)[1] - '0')
		headings = append(headings, Heading{
			Level: level,
			Text:  strings.Join(strings.Fields(s.Text()), " "),
		})
	})
	return headings
}

func (a *Analyzer) extractImages(doc *goquery.Document, base *url.URL) []Image {
	var images []Image
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if u := resolveLink(base, src); u != nil {
			src = u.String()
		}
		alt, _ := s.Attr("alt")
		images = append(images, Image{
			Src:        strings.TrimSpace(src),
			HasAltText: strings.TrimSpace(alt) != "",
		})
	})
	return images
}

// extractLinks splits anchors into same-host links (normalized) and
// links to other hosts; both are returned as sorted sets.
func (a *Analyzer) extractLinks(doc *goquery.Document, base *url.URL) ([]string, []string) {
	host := hostKey(base)
	internal := make(map[string]bool)
	external := make(map[string]bool)

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u := resolveLink(base, href)
		if u == nil {
			return
		}
		if hostKey(u) == host {
			if key, err := normalize(u); err == nil {
				internal[key] = true
			}
			return
		}
		external[u.String()] = true
	})

	return sortedKeys(internal), sortedKeys(external)
}

func (a *Analyzer) keywordDensity(tokens []string) map[string]int {
	density := make(map[string]int)
	if len(a.keywords) == 0 {
		for _, t := range deriveTerms(tokens, a.opts.AutoKeywordMinCount, a.opts.MaxAutoKeywords) {
			density[t.Term] = t.Count
		}
		return density
	}
	for _, kw := range a.keywords {
		density[kw.key] = countPhrase(tokens, kw.tokens)
	}
	return density
}

// checkRules applies the deterministic technical SEO rule set
func (a *Analyzer) checkRules(page *PageData) []Warning {
	var warnings []Warning

	titleLen := utf8.RuneCountInString(page.Title)
	if titleLen == 0 {
		warnings = append(warnings, Warning{Kind: WarnMissingTitle})
	} else if titleLen < MinTitleLength || titleLen > MaxTitleLength {
		warnings = append(warnings, Warning{
			Kind:   WarnTitleLength,
			Detail: fmt.Sprintf("title is %d characters, expected %d-%d", titleLen, MinTitleLength, MaxTitleLength),
		})
	}

	descLen := utf8.RuneCountInString(page.Description)
	if descLen == 0 {
		warnings = append(warnings, Warning{Kind: WarnMissingDescription})
	} else if descLen < MinDescriptionLength || descLen > MaxDescriptionLength {
		warnings = append(warnings, Warning{
			Kind:   WarnDescriptionLength,
			Detail: fmt.Sprintf("meta description is %d characters, expected %d-%d", descLen, MinDescriptionLength, MaxDescriptionLength),
		})
	}

	for _, img := range page.Images {
		if !img.HasAltText {
			warnings = append(warnings, Warning{Kind: WarnImageMissingAlt, Detail: img.Src})
		}
	}

	if h1 := page.HeadingCount(1); h1 > 1 {
		warnings = append(warnings, Warning{
			Kind:   WarnMultipleH1,
			Detail: fmt.Sprintf("%d h1 headings", h1),
		})
	}

	if page.WordCount < a.opts.MinWordCount {
		warnings = append(warnings, Warning{
			Kind:   WarnThinContent,
			Detail: fmt.Sprintf("%d words, expected at least %d", page.WordCount, a.opts.MinWordCount),
		})
	}

	return warnings
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
