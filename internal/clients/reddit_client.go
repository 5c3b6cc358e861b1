package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/spacesedan/leadscout/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// RedditClient fetches listings for one reddit application account.
type RedditClient struct {
	Account   string
	Config    *clientcredentials.Config
	Client    *http.Client
	baseURL   string
	userAgent string
	maxPages  int
	mu        sync.Mutex
}

func NewRedditClient(account, clientID, clientSecret, userAgent string) *RedditClient {
	oauthConf := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     REDDIT_AUTH_URL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	if userAgent == "" {
		userAgent = USER_AGENT
	}
	return &RedditClient{
		Account:   account,
		Config:    oauthConf,
		Client:    oauthConf.Client(context.Background()),
		baseURL:   REDDIT_API_URL,
		userAgent: userAgent,
		maxPages:  REDDIT_MAX_PAGES,
	}
}

// NewRedditClientWithHTTP builds a client around an already authenticated
// http.Client, e.g. one pointed at a test server.
func NewRedditClientWithHTTP(account string, hc *http.Client, baseURL string) *RedditClient {
	return &RedditClient{Account: account, Client: hc, baseURL: baseURL, userAgent: USER_AGENT, maxPages: REDDIT_MAX_PAGES}
}

// WithMaxPages caps how many listing pages one fetch walks back through.
func (rc *RedditClient) WithMaxPages(n int) *RedditClient {
	if n > 0 {
		rc.maxPages = n
	}
	return rc
}

func (rc *RedditClient) RefreshClient() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.Config != nil {
		rc.Client = rc.Config.Client(context.Background())
	}
}

func (rc *RedditClient) httpClient() *http.Client {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.Client
}

// FetchSince returns posts and/or comments of subreddit created strictly after
// since, oldest first.
func (rc *RedditClient) FetchSince(ctx context.Context, subreddit string, since time.Time, types []models.ContentType) ([]models.ContentItem, error) {
	var (
		items       []models.ContentItem
		subscribers int
	)
	for _, t := range types {
		var path string
		switch t {
		case models.ContentPost:
			path = "/r/" + subreddit + "/new"
		case models.ContentComment:
			path = "/r/" + subreddit + "/comments"
		default:
			continue
		}
		fetched, subs, truncated, err := rc.fetchListing(ctx, path, since)
		if err != nil {
			return nil, err
		}
		if truncated && len(fetched) > 0 {
			// The listing only goes back so far; the span between the checkpoint
			// and the oldest fetched item cannot be read and is skipped.
			oldest := fetched[len(fetched)-1].CreatedAt
			slog.Warn("[RedditClient] Listing truncated, skipping unreadable window",
				slog.String("account", rc.Account),
				slog.String("path", path),
				slog.Int("pages", rc.maxPages),
				slog.Time("since", since),
				slog.Time("oldest_fetched", oldest),
				slog.Duration("gap", oldest.Sub(since)))
		}
		if subs > 0 {
			subscribers = subs
		}
		items = append(items, fetched...)
	}

	if subscribers == 0 && len(items) > 0 {
		subs, err := rc.fetchSubscribers(ctx, subreddit)
		if err != nil {
			slog.Warn("[RedditClient] Could not read subscriber count",
				slog.String("subreddit", subreddit),
				slog.String("error", err.Error()))
		}
		subscribers = subs
	}
	for i := range items {
		items[i].SubscriberCount = subscribers
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

// fetchListing pages through a newest-first listing until it reaches since.
// truncated reports that the page cap ran out first.
func (rc *RedditClient) fetchListing(ctx context.Context, path string, since time.Time) (items []models.ContentItem, subscribers int, truncated bool, err error) {
	var after string
	for page := 0; page < rc.maxPages; page++ {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(REDDIT_PAGE_LIMIT))
		query.Set("raw_json", "1")
		if after != "" {
			query.Set("after", after)
		}

		var listing redditListing
		if err := rc.getJSON(ctx, path, query, &listing, true); err != nil {
			return nil, 0, false, err
		}

		reachedSince := false
		for _, child := range listing.Data.Children {
			item := toContentItem(child)
			if !item.CreatedAt.After(since) {
				reachedSince = true
				continue
			}
			if child.Data.SubredditSubscribers > 0 {
				subscribers = child.Data.SubredditSubscribers
			}
			items = append(items, item)
		}

		if reachedSince || listing.Data.After == "" {
			return items, subscribers, false, nil
		}
		after = listing.Data.After
	}
	return items, subscribers, true, nil
}

func (rc *RedditClient) fetchSubscribers(ctx context.Context, subreddit string) (int, error) {
	var about redditAbout
	if err := rc.getJSON(ctx, "/r/"+subreddit+"/about", url.Values{"raw_json": {"1"}}, &about, true); err != nil {
		return 0, err
	}
	return about.Data.Subscribers, nil
}

func (rc *RedditClient) getJSON(ctx context.Context, path string, query url.Values, v any, allowRefresh bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rc.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("[RedditClient] build request: %w", err)
	}
	req.Header.Set("User-Agent", rc.userAgent)

	resp, err := rc.httpClient().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %w", models.ErrSourceUnavailable, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: read %s: %w", models.ErrSourceUnavailable, path, err)
		}
		if err := json.Unmarshal(body, v); err != nil {
			return fmt.Errorf("%w: decode %s: %w", models.ErrSourceUnavailable, path, err)
		}
		return nil
	case resp.StatusCode == http.StatusUnauthorized && allowRefresh:
		slog.Warn("[RedditClient] Token expired - Refreshing and Retrying...",
			slog.String("account", rc.Account))
		rc.RefreshClient()
		return rc.getJSON(ctx, path, query, v, false)
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := retryAfterFrom(resp.Header)
		slog.Warn("[RedditClient] 429 Too Many Requests",
			slog.String("account", rc.Account),
			slog.Duration("retry_after", retryAfter))
		return &models.RateLimitedError{Account: rc.Account, RetryAfter: retryAfter}
	default:
		return fmt.Errorf("%w: %s returned %d", models.ErrSourceUnavailable, path, resp.StatusCode)
	}
}

func retryAfterFrom(h http.Header) time.Duration {
	for _, key := range []string{"Retry-After", "X-Ratelimit-Reset"} {
		if v := h.Get(key); v != "" {
			if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
				return time.Duration(secs * float64(time.Second))
			}
		}
	}
	return DEFAULT_RETRY_AFTER
}

func toContentItem(child redditChild) models.ContentItem {
	d := child.Data
	item := models.ContentItem{
		PostID:    d.Name,
		Subreddit: d.Subreddit,
		Author:    d.Author,
		URL:       "https://www.reddit.com" + d.Permalink,
		CreatedAt: time.Unix(0, int64(d.CreatedUTC*float64(time.Second))).UTC(),
	}
	if item.PostID == "" {
		item.PostID = d.ID
	}
	if child.Kind == "t1" {
		item.Type = models.ContentComment
		item.ParentID = d.LinkID
		item.Content = d.Body
	} else {
		item.Type = models.ContentPost
		item.Title = d.Title
		item.Content = d.Selftext
	}
	return item
}

// RedditSource routes fetches to the client registered for a source account.
type RedditSource struct {
	clients  map[string]*RedditClient
	fallback string
}

func NewRedditSource(fallback string, clients ...*RedditClient) *RedditSource {
	src := &RedditSource{clients: map[string]*RedditClient{}, fallback: fallback}
	for _, c := range clients {
		src.clients[c.Account] = c
	}
	return src
}

func (s *RedditSource) FetchSince(ctx context.Context, account, subreddit string, since time.Time, types []models.ContentType) ([]models.ContentItem, error) {
	client, ok := s.clients[account]
	if !ok {
		client, ok = s.clients[s.fallback]
	}
	if !ok {
		return nil, fmt.Errorf("[RedditSource] no client for account %q", account)
	}
	return client.FetchSince(ctx, subreddit, since, types)
}
