package keywords

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractRanksByFrequency(t *testing.T) {
	text := "Vector search. Vector index, vector store! Index of the store; search engines."
	got := Extract(text)

	assert.Equal(t, []string{"vector", "search", "index", "store", "engines"}, got)
}

func TestExtractDropsShortAndStopWords(t *testing.T) {
	got := Extract("para este caso the with from that data es una idea")
	assert.Equal(t, []string{"caso", "data", "idea"}, got)
}

func TestExtractKeepsAccentedWords(t *testing.T) {
	got := Extract("Búsqueda semántica: búsqueda híbrida")
	assert.Equal(t, []string{"búsqueda", "semántica", "híbrida"}, got)
}

func TestExtractCapsAtTwenty(t *testing.T) {
	var words []string
	for i := 0; i < 30; i++ {
		words = append(words, fmt.Sprintf("term%02d", i))
	}
	got := Extract(strings.Join(words, " "))

	assert.Len(t, got, MaxKeywords)
	assert.Equal(t, "term00", got[0])
	assert.Equal(t, "term19", got[19])
}

func TestExtractEmpty(t *testing.T) {
	assert.Empty(t, Extract(""))
	assert.Empty(t, Extract("a an of ..."))
}

func TestExtractTiesKeepFirstOccurrence(t *testing.T) {
	got := Extract("zeta alpha mango zeta alpha mango kiwi")
	assert.Equal(t, []string{"zeta", "alpha", "mango", "kiwi"}, got)
}
