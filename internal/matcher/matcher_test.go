package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacesedan/leadscout/internal/models"
)

func watchWith(include, exclude []string, types ...models.ContentType) models.Watch {
	if len(types) == 0 {
		types = []models.ContentType{models.ContentPost, models.ContentComment}
	}
	return models.Watch{
		UserID:          "U1",
		Subreddit:       "startups",
		Keywords:        include,
		ExcludeKeywords: exclude,
		ContentTypes:    types,
		Status:          models.WatchActive,
	}
}

func post(title, content string) models.ContentItem {
	return models.ContentItem{PostID: "p1", Type: models.ContentPost, Title: title, Content: content}
}

func TestExcludeWinsOverInclude(t *testing.T) {
	w := watchWith([]string{"b2b", "saas"}, []string{"hiring"})

	res := Match(post("", "Looking to hire a SaaS engineer"), w)

	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonExcludeMatch, res.Reason)
	assert.Equal(t, "hiring", res.Excluded)
}

func TestIncludeMatchIsCaseInsensitive(t *testing.T) {
	w := watchWith([]string{"b2b", "saas"}, nil)

	res := Match(post("Anyone know a good B2B CRM?", "We are a small team."), w)

	require.True(t, res.Accepted)
	assert.Equal(t, []string{"b2b"}, res.Matched)
	assert.InDelta(t, 0.5, res.Strength, 1e-9)
}

func TestEmptyIncludeMatchesEverything(t *testing.T) {
	res := Match(post("anything", "at all"), watchWith(nil, nil))

	assert.True(t, res.Accepted)
	assert.Equal(t, 1.0, res.Strength)
}

func TestEmptyIncludeStillHonoursExclude(t *testing.T) {
	res := Match(post("We are hiring", ""), watchWith(nil, []string{"hiring"}))

	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonExcludeMatch, res.Reason)
}

func TestContentTypeFilter(t *testing.T) {
	w := watchWith(nil, nil, models.ContentPost)
	item := post("", "saas")
	item.Type = models.ContentComment

	res := Match(item, w)

	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonContentType, res.Reason)
}

func TestWordBoundary(t *testing.T) {
	w := watchWith([]string{"app"}, nil)

	assert.False(t, Match(post("", "I bought an apple today"), w).Accepted)
	assert.True(t, Match(post("", "Which app do you use?"), w).Accepted)
}

func TestPhraseKeywordUsesStems(t *testing.T) {
	w := watchWith([]string{"cold email"}, nil)

	assert.True(t, Match(post("Cold emailing tips?", ""), w).Accepted)
	assert.False(t, Match(post("Email me when it gets cold", ""), w).Accepted)
}

func TestMarkdownLinksAreReducedToText(t *testing.T) {
	w := watchWith([]string{"crm"}, nil)

	res := Match(post("", "We tried [a CRM](https://example.com/crm-tool) and hated it"), w)

	assert.True(t, res.Accepted)
}

func TestMatchIsDeterministic(t *testing.T) {
	w := watchWith([]string{"saas", "churn", "pricing"}, []string{"job"})
	item := post("SaaS pricing", "How do you reduce churn?")

	first := Match(item, w)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Match(item, w))
	}
	assert.Equal(t, 1.0, first.Strength)
}
