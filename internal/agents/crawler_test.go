package agents

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/memberscope/internal/model"
)

func TestParseLinks(t *testing.T) {
	base, err := url.Parse("https://nema.example.org/members/")
	require.NoError(t, err)

	html := `
<a href="/members/acme">Acme</a>
<a href="profile-2">Relative</a>
<a href="https://nema.example.org/events/expo#agenda">Expo</a>
<a href="https://other.example.com/external">External</a>
<a href="#top">Top</a>
<a href="mailto:info@nema.example.org">Mail</a>
<a href="tel:+12165550147">Call</a>
<a href="javascript:void(0)">JS</a>
<a href="/members/acme">Duplicate</a>
`
	links := parseLinks(html, base)
	assert.Equal(t, []string{
		"https://nema.example.org/members/acme",
		"https://nema.example.org/members/profile-2",
		"https://nema.example.org/events/expo",
	}, links)
}

func TestLinkPriority(t *testing.T) {
	assert.Equal(t, 10, linkPriority("https://x.org/member-directory"))
	assert.Equal(t, 10, linkPriority("https://x.org/roster"))
	assert.Equal(t, 5, linkPriority("https://x.org/events/expo"))
	assert.Equal(t, 0, linkPriority("https://x.org/about"))
}

func TestLinkCrawlerHintsLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<a href="/members/acme">Acme</a><a href="/events/expo">Expo</a><a href="/about">About</a>`))
	}))
	defer srv.Close()

	c := NewLinkCrawler(newTestFetcher())
	res, err := c.Execute(context.Background(), model.Task{URL: srv.URL + "/", Association: "nema", Depth: 1})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.Links, 3)

	byURL := make(map[string]model.QueueItem, len(res.Links))
	for _, link := range res.Links {
		byURL[link.URL] = link
		assert.Equal(t, 2, link.Depth, "links sit one level below the crawled page")
		assert.Equal(t, srv.URL+"/", link.SourceURL)
	}
	assert.Equal(t, model.PageTypeMemberProfile, byURL[srv.URL+"/members/acme"].PageTypeHint)
	assert.Equal(t, 10, byURL[srv.URL+"/members/acme"].Priority)
	assert.Equal(t, model.PageTypeEventPage, byURL[srv.URL+"/events/expo"].PageTypeHint)
	assert.Equal(t, model.PageTypeOther, byURL[srv.URL+"/about"].PageTypeHint)
}

func TestLinkCrawlerNon200(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := NewLinkCrawler(newTestFetcher())
	_, err := c.Execute(context.Background(), model.Task{URL: srv.URL + "/gone"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
