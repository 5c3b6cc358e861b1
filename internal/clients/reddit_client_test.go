package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacesedan/leadscout/internal/models"
)

func listing(after string, children ...redditChild) redditListing {
	var l redditListing
	l.Data.After = after
	l.Data.Children = children
	return l
}

func postChild(id string, created time.Time) redditChild {
	return redditChild{Kind: "t3", Data: redditThingData{
		ID: id, Name: "t3_" + id, Subreddit: "startups", Author: "alice", Title: "title " + id,
		Selftext: "body " + id, Permalink: "/r/startups/comments/" + id + "/", CreatedUTC: float64(created.Unix()),
		SubredditSubscribers: 4200,
	}}
}

func commentChild(id, link string, created time.Time) redditChild {
	return redditChild{Kind: "t1", Data: redditThingData{
		ID: id, Name: "t1_" + id, Subreddit: "startups", Author: "bob", Body: "comment " + id,
		LinkID: link, Permalink: "/r/startups/comments/x/y/" + id + "/", CreatedUTC: float64(created.Unix()),
	}}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestFetchSincePagesFiltersAndSorts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/r/startups/new", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, USER_AGENT, r.Header.Get("User-Agent"))
		switch r.URL.Query().Get("after") {
		case "":
			writeJSON(w, listing("t3_c", postChild("d", base.Add(4*time.Minute)), postChild("c", base.Add(3*time.Minute))))
		case "t3_c":
			writeJSON(w, listing("t3_a", postChild("b", base.Add(2*time.Minute)), postChild("a", base)))
		default:
			t.Errorf("unexpected page %s", r.URL.RawQuery)
		}
	})
	mux.HandleFunc("/r/startups/comments", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, listing("", commentChild("k", "t3_c", base.Add(150*time.Second))))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rc := NewRedditClientWithHTTP("default", srv.Client(), srv.URL)
	items, err := rc.FetchSince(context.Background(), "startups", base, []models.ContentType{models.ContentPost, models.ContentComment})
	require.NoError(t, err)

	var ids []string
	for _, it := range items {
		ids = append(ids, it.PostID)
		assert.Equal(t, 4200, it.SubscriberCount)
	}
	assert.Equal(t, []string{"t3_b", "t1_k", "t3_c", "t3_d"}, ids)

	comment := items[1]
	assert.Equal(t, models.ContentComment, comment.Type)
	assert.Equal(t, "t3_c", comment.ParentID)
	assert.Equal(t, "comment k", comment.Content)
	assert.Equal(t, "https://www.reddit.com/r/startups/comments/x/y/k/", comment.URL)
}

func TestFetchSinceStopsAtPageCap(t *testing.T) {
	var requests atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/r/startups/new", func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		// Every page is newer than the checkpoint and points at another one.
		newest := base.Add(time.Duration(100-2*n) * time.Minute)
		id := strconv.Itoa(int(n))
		writeJSON(w, listing("t3_next"+id,
			postChild("p"+id+"a", newest),
			postChild("p"+id+"b", newest.Add(-time.Minute))))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rc := NewRedditClientWithHTTP("default", srv.Client(), srv.URL).WithMaxPages(2)
	items, err := rc.FetchSince(context.Background(), "startups", base, []models.ContentType{models.ContentPost})
	require.NoError(t, err)

	assert.Equal(t, int32(2), requests.Load())
	require.Len(t, items, 4)
	for i := 1; i < len(items); i++ {
		assert.True(t, items[i-1].CreatedAt.Before(items[i].CreatedAt))
	}
	assert.Equal(t, "t3_p2b", items[0].PostID)
	assert.Equal(t, "t3_p1a", items[3].PostID)
}

func TestFetchSinceReadsSubscribersForCommentsOnly(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/r/startups/comments", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, listing("", commentChild("k", "t3_c", base.Add(time.Minute))))
	})
	mux.HandleFunc("/r/startups/about", func(w http.ResponseWriter, r *http.Request) {
		var about redditAbout
		about.Data.Subscribers = 777
		writeJSON(w, about)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	items, err := NewRedditClientWithHTTP("default", srv.Client(), srv.URL).
		FetchSince(context.Background(), "startups", base, []models.ContentType{models.ContentComment})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 777, items[0].SubscriberCount)
}

func TestFetchSinceRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "42")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewRedditClientWithHTTP("acct-1", srv.Client(), srv.URL).
		FetchSince(context.Background(), "startups", base, []models.ContentType{models.ContentPost})

	require.ErrorIs(t, err, models.ErrRateLimited)
	var rl *models.RateLimitedError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, "acct-1", rl.Account)
	assert.Equal(t, 42*time.Second, rl.RetryAfter)
}

func TestFetchSinceServerErrorIsSourceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewRedditClientWithHTTP("default", srv.Client(), srv.URL).
		FetchSince(context.Background(), "startups", base, []models.ContentType{models.ContentPost})
	assert.ErrorIs(t, err, models.ErrSourceUnavailable)
}

func TestFetchSinceRetriesOnceAfterUnauthorized(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, listing("", postChild("a", base.Add(time.Minute))))
	}))
	defer srv.Close()

	items, err := NewRedditClientWithHTTP("default", srv.Client(), srv.URL).
		FetchSince(context.Background(), "startups", base, []models.ContentType{models.ContentPost})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRedditSourceRoutesByAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, listing(""))
	}))
	defer srv.Close()

	src := NewRedditSource("default", NewRedditClientWithHTTP("default", srv.Client(), srv.URL))
	_, err := src.FetchSince(context.Background(), "unknown", "startups", base, []models.ContentType{models.ContentPost})
	assert.NoError(t, err)

	empty := NewRedditSource("default")
	_, err = empty.FetchSince(context.Background(), "x", "startups", base, nil)
	assert.Error(t, err)
}
