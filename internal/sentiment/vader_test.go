package sentiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertMarkdownToText(t *testing.T) {
	in := "**Need help** with [our CRM](https://example.com/crm)\n\n- slow\n- buggy https://x.io/a"
	assert.Equal(t, "Need help with our CRM slow buggy", ConvertMarkdownToText(in))
}

func TestCompoundPolarity(t *testing.T) {
	assert.Less(t, Compound("This tool is terrible and I hate how slow it is"), PainThreshold)
	assert.Greater(t, Compound("I love this, it is great and wonderful"), PositiveThreshold)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "negative", Label(-0.5))
	assert.Equal(t, "neutral", Label(0))
	assert.Equal(t, "positive", Label(0.7))
}
