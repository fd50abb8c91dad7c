// Package classifier maps free-form component descriptions returned by
// remote extractors onto the closed component type set.
package classifier

import (
	"regexp"
	"strings"

	"forge-endpointify/internal/models"
)

type Classifier struct{}

func New() *Classifier { return &Classifier{} }

// synonyms for type strings seen in model output
var synonyms = map[string]models.ComponentType{
	"searchbox":  models.ComponentSearch,
	"search_box": models.ComponentSearch,
	"searchbar":  models.ComponentSearch,
	"query":      models.ComponentSearch,
	"input":      models.ComponentForm,
	"textarea":   models.ComponentForm,
	"login":      models.ComponentForm,
	"list":       models.ComponentTable,
	"grid":       models.ComponentTable,
	"results":    models.ComponentTable,
	"feed":       models.ComponentTable,
	"link":       models.ComponentButton,
	"cta":        models.ComponentButton,
	"submit":     models.ComponentButton,
	"action":     models.ComponentButton,
	"select":     models.ComponentFilter,
	"dropdown":   models.ComponentFilter,
	"checkbox":   models.ComponentFilter,
	"radio":      models.ComponentFilter,
	"facet":      models.ComponentFilter,
	"sort":       models.ComponentFilter,
	"pager":      models.ComponentPagination,
	"next":       models.ComponentPagination,
	"load_more":  models.ComponentPagination,
}

type signal struct {
	typ    models.ComponentType
	re     *regexp.Regexp
	reason string
}

// signals are checked in order; the first match wins.
var signals = []signal{
	{models.ComponentPagination, regexp.MustCompile(`(?i)\b(next|prev(ious)?|more|page\s*\d+|pagination|load\s+more)\b`), "navigation wording"},
	{models.ComponentSearch, regexp.MustCompile(`(?i)\b(search|query|find|lookup)\b`), "search wording"},
	{models.ComponentFilter, regexp.MustCompile(`(?i)\b(filter|sort(\s+by)?|category|facet|refine)\b`), "filter wording"},
	{models.ComponentTable, regexp.MustCompile(`(?i)\b(table|list|rows?|results|items|stories|grid)\b`), "collection wording"},
	{models.ComponentForm, regexp.MustCompile(`(?i)\b(form|sign\s*(in|up)|log\s*in|subscribe|register|email)\b`), "form wording"},
	{models.ComponentButton, regexp.MustCompile(`(?i)\b(button|click|vote|submit|open|add|buy)\b`), "action wording"},
}

// Classify resolves c's type. It returns the type, a short reason and
// whether classification succeeded.
func (cl *Classifier) Classify(c models.Component) (models.ComponentType, string, bool) {
	raw := strings.ToLower(strings.TrimSpace(string(c.Type)))
	if t := models.ComponentType(raw); t.Valid() {
		return t, "declared type", true
	}
	if t, ok := synonyms[strings.ReplaceAll(raw, "-", "_")]; ok {
		return t, "type synonym", true
	}

	text := strings.Join(append([]string{c.Label, c.Description}, c.ActionHints...), " ")
	for _, s := range signals {
		if s.re.MatchString(text) {
			return s.typ, s.reason, true
		}
	}
	return "", "", false
}

var defaultHints = map[models.ComponentType][]string{
	models.ComponentSearch:     {"submit_query", "clear"},
	models.ComponentForm:       {"fill", "submit"},
	models.ComponentTable:      {"read_rows", "open_item"},
	models.ComponentButton:     {"click"},
	models.ComponentFilter:     {"set_filter"},
	models.ComponentPagination: {"next_page"},
}

// DefaultActionHints returns the action names used when a source omits them.
func DefaultActionHints(t models.ComponentType) []string {
	return append([]string(nil), defaultHints[t]...)
}
