package table

import (
	"testing"
	"time"

	"github.com/ccnd-project/ccnd/internal/ccnb"
	"github.com/ccnd-project/ccnd/internal/ccnname"
	"github.com/stretchr/testify/require"
)

func mustName(t *testing.T, s string) ccnname.Name {
	t.Helper()
	n, err := ccnname.NameFromStr(s)
	require.NoError(t, err)
	return n
}

func contentObject(t *testing.T, name string, content string) *ccnb.ContentObject {
	co := &ccnb.ContentObject{Name: mustName(t, name), Content: []byte(content), FreshnessPeriod: time.Minute}
	_, err := (ccnb.TLVCodec{}).EncodeData(co)
	require.NoError(t, err)
	return co
}

func TestContentStoreExactHit(t *testing.T) {
	cs := NewContentStore(1024, nil)
	co := contentObject(t, "/a/b", "hello")
	cs.Insert(co, 5, 0, time.Minute)

	it := &ccnb.Interest{Name: mustName(t, "/a/b")}
	e, ok := cs.Match(it, 0)
	require.True(t, ok)
	require.Equal(t, co.Digest[:], e.Name[len(e.Name)-1].Val)
	require.Equal(t, uint64(5), e.ArrivalFaceID)
}

func TestContentStoreMatchAndMiss(t *testing.T) {
	cs := NewContentStore(1024, nil)
	co := contentObject(t, "/a/b", "hello")
	cs.Insert(co, 1, 0, time.Minute)

	hit := &ccnb.Interest{Name: mustName(t, "/a/b")}
	_, ok := cs.Match(hit, 0)
	require.True(t, ok)

	miss := &ccnb.Interest{Name: mustName(t, "/a/x")}
	_, ok = cs.Match(miss, 0)
	require.False(t, ok)
}

func TestContentStoreMustBeFreshSplicesStale(t *testing.T) {
	cs := NewContentStore(1024, nil)
	co := contentObject(t, "/a/b", "hello")
	e := cs.Insert(co, 1, 0, 0) // inserted at now=0 with zero freshness: already stale by now=1

	it := &ccnb.Interest{Name: mustName(t, "/a/b"), MustBeFresh: true}
	_, ok := cs.Match(it, 1)
	require.False(t, ok, "stale entry must not satisfy MustBeFresh")

	// entry was spliced from the index
	require.Equal(t, 0, cs.Size())
	_, stillCookied := cs.FromCookie(e.Cookie)
	require.False(t, stillCookied, "unreferenced stale entry should be fully reclaimed")
}

func TestContentStoreCapacityEnforcement(t *testing.T) {
	cs := NewContentStore(2, nil)
	cs.Insert(contentObject(t, "/a/1", "x"), 1, 0, time.Minute)
	cs.Insert(contentObject(t, "/a/2", "x"), 1, 0, time.Minute)
	cs.Insert(contentObject(t, "/a/3", "x"), 1, 0, time.Minute)

	require.LessOrEqual(t, cs.Size(), 2)
}

func TestContentStoreCookieSurvivesWhileReferenced(t *testing.T) {
	cs := NewContentStore(1024, nil)
	co := contentObject(t, "/a/b", "hello")
	e := cs.Insert(co, 1, 0, time.Minute)
	cs.IncRef(e)

	it := &ccnb.Interest{Name: mustName(t, "/a/b"), MustBeFresh: true}
	_, ok := cs.Match(it, StaleTime(3600))
	require.False(t, ok)

	got, ok := cs.FromCookie(e.Cookie)
	require.True(t, ok, "referenced entry must remain resolvable by cookie after splice")
	require.Equal(t, e, got)

	cs.DecRef(e)
}
