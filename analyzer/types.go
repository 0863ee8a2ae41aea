package analyzer

import "strings"

// PageData is the structured analysis of one fetched page
type PageData struct {
	URL            string         `json:"url"`
	Title          string         `json:"title"`
	Description    string         `json:"meta_description"`
	Headings       []Heading      `json:"headings"`
	WordCount      int            `json:"word_count"`
	KeywordDensity map[string]int `json:"keyword_density"`
	InternalLinks  []string       `json:"internal_links"`
	ExternalLinks  []string       `json:"external_links"`
	Images         []Image        `json:"images"`
	Warnings       []Warning      `json:"warnings"`
	ContentHash    string         `json:"content_hash,omitempty"`
	StatusCode     int            `json:"status_code,omitempty"`
	Depth          int            `json:"depth"`

	// body text the counts were taken from; not serialized
	text string
}

type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

type Image struct {
	Src        string `json:"src"`
	HasAltText bool   `json:"has_alt_text"`
}

// WarningKind identifies one rule of the technical SEO rule set
type WarningKind string

const (
	WarnMissingTitle       WarningKind = "missing_title"
	WarnTitleLength        WarningKind = "title_length"
	WarnMissingDescription WarningKind = "missing_meta_description"
	WarnDescriptionLength  WarningKind = "meta_description_length"
	WarnImageMissingAlt    WarningKind = "image_missing_alt"
	WarnMultipleH1         WarningKind = "multiple_h1"
	WarnThinContent        WarningKind = "thin_content"

	// Crawl-level warnings attached to placeholder pages
	WarnFetchFailed      WarningKind = "fetch_failed"
	WarnNonHTML          WarningKind = "non_html_content"
	WarnRobotsDisallowed WarningKind = "robots_disallowed"
)

type Warning struct {
	Kind   WarningKind `json:"kind"`
	Detail string      `json:"detail,omitempty"`
}

// HeadingCount returns the number of headings at the given level
func (p *PageData) HeadingCount(level int) int {
	if p == nil {
		return 0
	}
	n := 0
	for _, h := range p.Headings {
		if h.Level == level {
			n++
		}
	}
	return n
}

// Occurrences counts whole-word occurrences of term in the body text.
// A page without retained text, such as one decoded from JSON, answers
// from KeywordDensity.
func (p *PageData) Occurrences(term string) int {
	if p == nil {
		return 0
	}
	phrase := Tokenize(term)
	if len(phrase) == 0 {
		return 0
	}
	if p.text == "" {
		return p.KeywordDensity[strings.Join(phrase, " ")]
	}
	return countPhrase(Tokenize(p.text), phrase)
}

// ImagesWithoutAlt counts images lacking alt text
func (p *PageData) ImagesWithoutAlt() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, img := range p.Images {
		if !img.HasAltText {
			n++
		}
	}
	return n
}

// WarningCount counts warnings of a kind; an empty kind counts all of them
func (p *PageData) WarningCount(kind WarningKind) int {
	if p == nil {
		return 0
	}
	if kind == "" {
		return len(p.Warnings)
	}
	n := 0
	for _, w := range p.Warnings {
		if w.Kind == kind {
			n++
		}
	}
	return n
}

// Failed reports whether the page is a placeholder for a page that could
// not be fetched or analyzed.
func (p *PageData) Failed() bool {
	if p == nil {
		return true
	}
	for _, w := range p.Warnings {
		switch w.Kind {
		case WarnFetchFailed, WarnNonHTML, WarnRobotsDisallowed:
			return true
		}
	}
	return false
}

// Placeholder builds the PageData recorded for a URL that produced no
// analyzable content.
func Placeholder(url string, depth int, kind WarningKind, detail string) *PageData {
	return &PageData{
		URL:            url,
		Depth:          depth,
		KeywordDensity: map[string]int{},
		Warnings:       []Warning{{Kind: kind, Detail: detail}},
	}
}
