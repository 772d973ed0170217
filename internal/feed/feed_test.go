package feed_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/simplixity/smiirl-feed/internal/cache"
	"github.com/simplixity/smiirl-feed/internal/envelope"
	"github.com/simplixity/smiirl-feed/internal/feed"
	"github.com/simplixity/smiirl-feed/internal/graph"
	"github.com/simplixity/smiirl-feed/internal/instagram"
	"github.com/simplixity/smiirl-feed/internal/settings"
	"github.com/simplixity/smiirl-feed/internal/testhelpers"
	"github.com/simplixity/smiirl-feed/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	router *feed.Router
	dir    string
	graph  *testhelpers.MockGraphServer
	web    *testhelpers.MockInstagramServer
}

func setup(t *testing.T) fixture {
	t.Helper()

	dir := t.TempDir()
	graphMock := testhelpers.SetupMockGraphServer(t)
	webMock := testhelpers.SetupMockInstagramServer(t)

	results, err := cache.NewFile[envelope.Result](dir)
	require.NoError(t, err)
	pageTokens, err := cache.NewFile[graph.PageToken](dir)
	require.NoError(t, err)

	resultCache := envelope.NewCache(results)
	httpClient := upstream.NewClient(5 * time.Second)

	graphClient := graph.New(graph.Config{
		APIURL:            graphMock.URL(),
		SystemToken:       "system-token",
		CacheKey:          feed.ServiceInstagram,
		Lifetime:          time.Minute,
		PageTokenLifetime: time.Hour,
	}, httpClient, resultCache, pageTokens, settings.NewMemory(nil))

	webClient := instagram.New(instagram.Config{
		Username:      "acme",
		WebProfileURL: webMock.URL(),
		CacheKey:      feed.ServiceInstagramV1,
		Lifetime:      time.Minute,
	}, httpClient, resultCache)

	router := feed.NewRouter()
	router.Register(feed.ServiceInstagram, graphClient.Followers)
	router.Register(feed.ServiceInstagramV1, webClient.Followers)

	return fixture{router: router, dir: dir, graph: graphMock, web: webMock}
}

func TestGetData_Dispatch(t *testing.T) {
	f := setup(t)

	graphResult := f.router.GetData(context.Background(), "instagram")
	assert.Equal(t, int64(4242), graphResult.Number)
	assert.Equal(t, 3, f.graph.TotalCalls())
	assert.Equal(t, 0, f.web.Profile.Calls())

	webResult := f.router.GetData(context.Background(), "instagram-v1")
	assert.Equal(t, int64(1234), webResult.Number)
	assert.Equal(t, 1, f.web.Profile.Calls())
}

func TestGetData_CaseInsensitive(t *testing.T) {
	f := setup(t)

	result := f.router.GetData(context.Background(), "Instagram-V1")

	assert.Equal(t, "Instagram-V1", result.Service, "the requested name is reported")
	assert.Equal(t, int64(1234), result.Number)

	// the canonical cache slot is shared by every spelling
	cached := f.router.GetData(context.Background(), "INSTAGRAM-v1")
	assert.Equal(t, "INSTAGRAM-v1", cached.Service)
	assert.NotNil(t, cached.Cache)
	assert.Equal(t, 1, f.web.Profile.Calls())
}

func TestGetData_UnknownService(t *testing.T) {
	f := setup(t)

	result := f.router.GetData(context.Background(), "unknown-provider")

	assert.Equal(t, "unknown-provider", result.Service)
	assert.Equal(t, int64(0), result.Number)
	assert.Equal(t, "unsupported service: unknown-provider", result.Response.Error)
	assert.Nil(t, result.Cache)

	assert.Equal(t, 0, f.graph.TotalCalls())
	assert.Equal(t, 0, f.web.Profile.Calls())

	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no cache file is written")
}

func TestRouter_Lookup(t *testing.T) {
	router := feed.NewRouter()
	router.Register("Straße", func(ctx context.Context, base envelope.Result) envelope.Result {
		return base
	})

	_, ok := router.Lookup("STRASSE")
	assert.True(t, ok, "names are matched with full case folding")

	_, ok = router.Lookup("strasse-v1")
	assert.False(t, ok)
}
