package xform

import (
	"context"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline_ExecuteFetchesURI(t *testing.T) {
	fetcher := MapFetcher{"#x": []byte("<Foo/>")}
	p := NewPipeline(fetcher)
	p.SetURI("#x", nil)

	buf, err := p.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "<Foo/>", string(buf))
}

func TestPipeline_ExecuteWithoutURIFails(t *testing.T) {
	p := NewPipeline(MapFetcher{})
	_, err := p.Execute(context.Background())
	assert.Error(t, err)
}

func TestPipeline_ResetClearsURI(t *testing.T) {
	p := NewPipeline(MapFetcher{"#x": []byte("y")})
	p.SetURI("#x", nil)
	p.Reset()
	assert.Equal(t, "", p.URI())

	_, err := p.Execute(context.Background())
	assert.Error(t, err)
}

func TestPipeline_ParseTransformsRequiresAlgorithm(t *testing.T) {
	p := NewPipeline(MapFetcher{})

	doc := etree.NewDocument()
	doc.ReadFromString(`<Transforms><Transform Algorithm="http://example/alg"/></Transforms>`)
	require.NoError(t, p.ParseTransforms(doc.Root()))

	doc2 := etree.NewDocument()
	doc2.ReadFromString(`<Transforms><Transform/></Transforms>`)
	assert.Error(t, p.ParseTransforms(doc2.Root()))
}

func TestCopyUserPref_CopiesFetcherNotState(t *testing.T) {
	src := NewPipeline(MapFetcher{"#x": []byte("y")})
	src.SetURI("#x", nil)

	dst := NewPipeline(nil)
	CopyUserPref(dst, src)

	assert.Equal(t, "", dst.URI(), "CopyUserPref must not copy per-run URI state")

	buf, err := func() ([]byte, error) {
		dst.SetURI("#x", nil)
		return dst.Execute(context.Background())
	}()
	require.NoError(t, err)
	assert.Equal(t, "y", string(buf))
}

func TestCachingFetcher_CachesResult(t *testing.T) {
	calls := 0
	inner := FetcherFunc(func(ctx context.Context, uri string) ([]byte, error) {
		calls++
		return []byte("data:" + uri), nil
	})

	cf := NewCachingFetcher("xform-test-caching-fetcher", 1<<20, inner)

	buf1, err := cf.Fetch(context.Background(), "http://example/a")
	require.NoError(t, err)
	buf2, err := cf.Fetch(context.Background(), "http://example/a")
	require.NoError(t, err)

	assert.Equal(t, buf1, buf2)
	assert.Equal(t, 1, calls, "second fetch of the same URI should be served from cache")
}
