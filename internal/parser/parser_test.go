package parser

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"forge-endpointify/internal/models"
)

const sampleHTML = `<!doctype html><html lang="en"><head><title>Listings</title></head><body>
<form>
  <input type="text" id="q" name="query" placeholder="Search   listings">
  <select name="category"><option>All</option></select>
  <input type="checkbox" id="open-now">
  <input type="radio" class="sort-radio primary extra" name="sort">
  <input type="radio" name="ignored">
  <button class="btn btn-primary go">Go</button>
  <input type="submit" value="Apply">
</form>
<a role="button" aria-label="Share"></a>
<button>   </button>
<button>Extra</button>
<table aria-label="Results"><tr><td>row</td></tr></table>
<ul><li>x</li></ul>
<a href="/page/2" rel="next">Older</a>
</body></html>`

func byID(cs []models.Component) map[string]models.Component {
	m := make(map[string]models.Component, len(cs))
	for _, c := range cs {
		m[c.ID] = c
	}
	return m
}

func TestExtract(t *testing.T) {
	p := New()
	got, err := p.Extract(sampleHTML)
	require.NoError(t, err)
	require.Len(t, got, 10)

	ids := make([]string, len(got))
	for i, c := range got {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{
		"heur_search",
		"heur_filter_0", "heur_filter_1", "heur_filter_2",
		"heur_button_0", "heur_button_1", "heur_button_2", "heur_button_3",
		"heur_table", "heur_pagination",
	}, ids)

	m := byID(got)
	assert.Equal(t, "#q", m["heur_search"].Selector)
	assert.Equal(t, "Search listings", m["heur_search"].Label)
	assert.Equal(t, ConfidenceSearch, m["heur_search"].Confidence)

	assert.Equal(t, "select", m["heur_filter_0"].Selector)
	assert.Equal(t, "category", m["heur_filter_0"].Label)
	assert.Equal(t, "#open-now", m["heur_filter_1"].Selector)
	assert.Equal(t, "input.sort-radio.primary", m["heur_filter_2"].Selector)

	assert.Equal(t, "button.btn.btn-primary", m["heur_button_0"].Selector)
	assert.Equal(t, "Go", m["heur_button_0"].Label)
	assert.Equal(t, "Apply", m["heur_button_1"].Label)
	assert.Equal(t, "Share", m["heur_button_2"].Label)
	assert.Equal(t, "Action 4", m["heur_button_3"].Label)

	assert.Equal(t, "Results", m["heur_table"].Label)
	assert.Equal(t, "table", m["heur_table"].Selector)
	assert.Equal(t, "Older", m["heur_pagination"].Label)
	assert.Equal(t, []string{"next_page"}, m["heur_pagination"].ActionHints)
	assert.True(t, Found(got))
}

func TestExtractSearchCaseInsensitive(t *testing.T) {
	got, err := New().Extract(`<input name="SiteSearch"><input type="SEARCH" id="later">`)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, models.ComponentSearch, got[0].Type)
	assert.Equal(t, "input", got[0].Selector)
	assert.Equal(t, "SiteSearch", got[0].Label)
}

func TestExtractPaginationText(t *testing.T) {
	got, err := New().Extract(`<div><a class="morelink" href="?p=2">More</a></div>`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "heur_pagination", got[0].ID)
	assert.Equal(t, "a.morelink", got[0].Selector)

	got, err = New().Extract(`<button id="nx">Next page</button>`)
	require.NoError(t, err)
	m := byID(got)
	assert.Equal(t, "#nx", m["heur_pagination"].Selector)
	assert.Equal(t, "#nx", m["heur_button_0"].Selector)
}

func TestExtractLinkFallback(t *testing.T) {
	got, err := New().Extract(`<p>hello <a href="/about">  About   us </a> <a href="/x">x</a></p>`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "heur_link_0", got[0].ID)
	assert.Equal(t, "About us", got[0].Label)
	assert.Equal(t, ConfidenceLink, got[0].Confidence)
	assert.True(t, Found(got))
}

func TestExtractPageFallback(t *testing.T) {
	for _, in := range []string{"", "<p>just text</p>", "<a>no href</a>"} {
		got, err := New().Extract(in)
		require.NoError(t, err)
		require.Len(t, got, 1, in)
		assert.Equal(t, PageContent(), got[0])
		assert.False(t, Found(got))
	}
}

func TestClip(t *testing.T) {
	long := strings.Repeat("é", 100)
	assert.Equal(t, 72, len([]rune(clip(long))))
	assert.Equal(t, "a b c", clip("  a \n\t b   c "))
}

func TestExtractBounds(t *testing.T) {
	fragments := []string{
		`<input type="search">`, `<select></select>`, `<input type="checkbox">`,
		`<button>b</button>`, `<input type="submit">`, `<a role="button">r</a>`,
		`<table></table>`, `<ul><li>i</li></ul>`, `<a href="/n" rel="next">n</a>`,
		`<a href="/l">l</a>`, `<p>text</p>`, `<div class="x y z">d</div>`, `<form></form>`,
	}
	rapid.Check(t, func(t *rapid.T) {
		parts := rapid.SliceOfN(rapid.SampledFrom(fragments), 0, 40).Draw(t, "parts")
		html := fmt.Sprintf("<html><body>%s</body></html>", strings.Join(parts, ""))
		got, err := New().Extract(html)
		if err != nil {
			t.Fatalf("extract: %v", err)
		}
		if len(got) < 1 || len(got) > MaxComponents {
			t.Fatalf("component count %d out of bounds", len(got))
		}
		for _, c := range got {
			if !c.Type.Valid() {
				t.Fatalf("invalid type %q", c.Type)
			}
		}
	})
}

func TestErrParseWrapping(t *testing.T) {
	err := fmt.Errorf("%w: boom", ErrParse)
	assert.True(t, errors.Is(err, ErrParse))
}
