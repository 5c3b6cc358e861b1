package clients

type redditListing struct {
	Data struct {
		After    string        `json:"after"`
		Children []redditChild `json:"children"`
	} `json:"data"`
}

type redditChild struct {
	Kind string          `json:"kind"`
	Data redditThingData `json:"data"`
}

type redditThingData struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	Subreddit            string  `json:"subreddit"`
	Author               string  `json:"author"`
	Title                string  `json:"title"`
	Selftext             string  `json:"selftext"`
	Body                 string  `json:"body"`
	Permalink            string  `json:"permalink"`
	LinkID               string  `json:"link_id"`
	CreatedUTC           float64 `json:"created_utc"`
	SubredditSubscribers int     `json:"subreddit_subscribers"`
}

type redditAbout struct {
	Data struct {
		Subscribers int `json:"subscribers"`
	} `json:"data"`
}
