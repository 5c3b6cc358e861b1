package clients

import "time"

const (
	REDDIT_AUTH_URL     = "https://www.reddit.com/api/v1/access_token"
	REDDIT_API_URL      = "https://oauth.reddit.com"
	REDDIT_PAGE_LIMIT   = 100
	REDDIT_MAX_PAGES    = 10
	DEFAULT_RETRY_AFTER = 60 * time.Second
	USER_AGENT          = "leadscout/1.0 (+https://github.com/spacesedan/leadscout)"
)
