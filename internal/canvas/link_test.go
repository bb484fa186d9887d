package canvas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLinkHeader(t *testing.T) {
	header := `<https://canvas.example.edu/api/v1/courses?page=2&per_page=100>; rel="next",` +
		`<https://canvas.example.edu/api/v1/courses?page=1&per_page=100>; rel="first",` +
		`<https://canvas.example.edu/api/v1/courses?page=7&per_page=100>; rel="last"`

	links := parseLinkHeader(header)
	assert.Equal(t, "https://canvas.example.edu/api/v1/courses?page=2&per_page=100", links["next"])
	assert.Equal(t, "https://canvas.example.edu/api/v1/courses?page=7&per_page=100", links["last"])
	assert.Equal(t, "https://canvas.example.edu/api/v1/courses?page=1&per_page=100", links["first"])
}

func TestParseLinkHeader_Empty(t *testing.T) {
	assert.Empty(t, parseLinkHeader(""))
	assert.Empty(t, parseLinkHeader("garbage"))
}

func TestNumberedPageURLs(t *testing.T) {
	links := map[string]string{
		"next": "https://canvas.example.edu/api/v1/courses?page=2&per_page=100",
		"last": "https://canvas.example.edu/api/v1/courses?page=4&per_page=100",
	}

	urls := numberedPageURLs(links)
	require.Len(t, urls, 3)
	assert.Contains(t, urls[0], "page=2")
	assert.Contains(t, urls[1], "page=3")
	assert.Contains(t, urls[2], "page=4")
}

func TestNumberedPageURLs_NoLastPage(t *testing.T) {
	assert.Nil(t, numberedPageURLs(map[string]string{
		"next": "https://canvas.example.edu/api/v1/courses?page=2",
	}))
	assert.Nil(t, numberedPageURLs(map[string]string{
		"next": "https://canvas.example.edu/api/v1/courses?page=2",
		"last": "https://canvas.example.edu/api/v1/courses",
	}))
	assert.Nil(t, numberedPageURLs(nil))
}
