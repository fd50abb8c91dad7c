// Package parser implements the static heuristic component extractor: a
// fixed sequence of DOM-pattern rules over raw HTML with no I/O.
package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"forge-endpointify/internal/models"
)

// ErrParse is returned when the HTML parser rejects the input.
var ErrParse = errors.New("parser: parse error")

const (
	// MaxComponents caps the heuristic output.
	MaxComponents = 10

	// PageContentID identifies the synthetic whole-page component emitted
	// when no rule matched anything.
	PageContentID = "heur_page_content"

	maxFilters = 3
	maxButtons = 4
	labelLimit = 72
)

// Confidence tiers per rule.
const (
	ConfidenceSearch     = 0.75
	ConfidenceButton     = 0.70
	ConfidenceTable      = 0.67
	ConfidenceFilter     = 0.64
	ConfidencePagination = 0.60
	ConfidenceLink       = 0.52
	ConfidencePage       = 0.35
)

type Parser struct{}

func New() *Parser { return &Parser{} }

var whitespaceRe = regexp.MustCompile(`\s+`)

// Extract applies the rule sequence to html and returns between 1 and
// MaxComponents components. Empty input yields the whole-page placeholder.
func (p *Parser) Extract(html string) ([]models.Component, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	var out []models.Component

	// search field
	search := doc.Find("input").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.EqualFold(s.AttrOr("type", ""), "search") ||
			containsFold(s.AttrOr("name", ""), "search") ||
			containsFold(s.AttrOr("placeholder", ""), "search")
	}).First()
	if search.Length() > 0 {
		out = append(out, models.Component{
			ID:          "heur_search",
			Type:        models.ComponentSearch,
			Label:       clip(firstNonEmpty(search.AttrOr("placeholder", ""), search.AttrOr("name", ""), "Search")),
			Selector:    cssSelector(search),
			Description: "Detected search field",
			Confidence:  ConfidenceSearch,
			ActionHints: []string{"submit_query", "clear"},
		})
	}

	// filter controls
	limit(doc.Find("select, input[type='checkbox'], input[type='radio']"), maxFilters).Each(func(i int, s *goquery.Selection) {
		out = append(out, models.Component{
			ID:          fmt.Sprintf("heur_filter_%d", i),
			Type:        models.ComponentFilter,
			Label:       clip(firstNonEmpty(s.AttrOr("name", ""), s.AttrOr("id", ""), "Filter")),
			Selector:    cssSelector(s),
			Description: "Detected filtering control",
			Confidence:  ConfidenceFilter,
			ActionHints: []string{"set_filter"},
		})
	})

	// action buttons
	limit(doc.Find("button, input[type='submit'], a[role='button']"), maxButtons).Each(func(i int, s *goquery.Selection) {
		label := clip(firstSet(s.Text(), s.AttrOr("value", ""), s.AttrOr("aria-label", ""), "Action"))
		if label == "" {
			label = fmt.Sprintf("Action %d", i+1)
		}
		out = append(out, models.Component{
			ID:          fmt.Sprintf("heur_button_%d", i),
			Type:        models.ComponentButton,
			Label:       label,
			Selector:    cssSelector(s),
			Description: "Detected clickable action",
			Confidence:  ConfidenceButton,
			ActionHints: []string{"click"},
		})
	})

	// primary result container
	if table := doc.Find("table, [role='table'], ul, ol").First(); table.Length() > 0 {
		out = append(out, models.Component{
			ID:          "heur_table",
			Type:        models.ComponentTable,
			Label:       clip(firstNonEmpty(table.AttrOr("aria-label", ""), "Result List")),
			Selector:    cssSelector(table),
			Description: "Detected result container",
			Confidence:  ConfidenceTable,
			ActionHints: []string{"read_rows", "open_item"},
		})
	}

	// pagination
	next := doc.Find("a, button").FilterFunction(func(_ int, s *goquery.Selection) bool {
		if goquery.NodeName(s) == "button" {
			return strings.Contains(s.Text(), "Next")
		}
		return s.AttrOr("rel", "") == "next" || strings.Contains(s.Text(), "More")
	}).First()
	if next.Length() > 0 {
		out = append(out, models.Component{
			ID:          "heur_pagination",
			Type:        models.ComponentPagination,
			Label:       clip(firstNonEmpty(next.Text(), "Next")),
			Selector:    cssSelector(next),
			Description: "Detected navigation control",
			Confidence:  ConfidencePagination,
			ActionHints: []string{"next_page"},
		})
	}

	if len(out) == 0 {
		if link := doc.Find("a[href]").First(); link.Length() > 0 {
			out = append(out, models.Component{
				ID:          "heur_link_0",
				Type:        models.ComponentButton,
				Label:       clip(firstNonEmpty(link.Text(), link.AttrOr("aria-label", ""), "Open Link")),
				Selector:    cssSelector(link),
				Description: "Fallback interactive link",
				Confidence:  ConfidenceLink,
				ActionHints: []string{"open_link"},
			})
		}
	}

	if len(out) == 0 {
		out = append(out, PageContent())
	}

	if len(out) > MaxComponents {
		out = out[:MaxComponents]
	}
	return out, nil
}

// PageContent is the synthetic whole-page component.
func PageContent() models.Component {
	return models.Component{
		ID:          PageContentID,
		Type:        models.ComponentTable,
		Label:       "Page Content",
		Selector:    "body",
		Description: "Fallback page content container",
		Confidence:  ConfidencePage,
		ActionHints: []string{"read_rows"},
	}
}

// Found reports whether components holds anything besides the synthetic
// whole-page placeholder.
func Found(components []models.Component) bool {
	for _, c := range components {
		if c.ID != PageContentID {
			return true
		}
	}
	return false
}

func limit(s *goquery.Selection, n int) *goquery.Selection {
	if s.Length() > n {
		return s.Slice(0, n)
	}
	return s
}

// cssSelector prefers #id, then tag.class1.class2, then the bare tag name.
func cssSelector(s *goquery.Selection) string {
	if id := strings.TrimSpace(s.AttrOr("id", "")); id != "" {
		return "#" + id
	}
	tag := goquery.NodeName(s)
	if tag == "" {
		tag = "*"
	}
	classes := strings.Fields(s.AttrOr("class", ""))
	if len(classes) > 2 {
		classes = classes[:2]
	}
	if len(classes) == 0 {
		return tag
	}
	return tag + "." + strings.Join(classes, ".")
}

// clip collapses whitespace and truncates to labelLimit runes.
func clip(text string) string {
	text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	if utf8.RuneCountInString(text) <= labelLimit {
		return text
	}
	return strings.TrimSpace(string([]rune(text)[:labelLimit]))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// firstSet returns the first value that is not the empty string, even if
// it is only whitespace.
func firstSet(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}
