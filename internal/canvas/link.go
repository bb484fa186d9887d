package canvas

import (
	"net/url"
	"strconv"
	"strings"
)

// parseLinkHeader extracts rel -> URL from an RFC 5988 Link header, e.g.
//
//	<https://canvas/api/v1/courses?page=2&per_page=100>; rel="next",
//	<https://canvas/api/v1/courses?page=7&per_page=100>; rel="last"
func parseLinkHeader(header string) map[string]string {
	links := make(map[string]string)
	for _, part := range strings.Split(header, ",") {
		sections := strings.Split(strings.TrimSpace(part), ";")
		if len(sections) < 2 {
			continue
		}

		target := strings.Trim(strings.TrimSpace(sections[0]), "<>")
		if target == "" {
			continue
		}

		for _, attr := range sections[1:] {
			attr = strings.TrimSpace(attr)
			if rel, ok := strings.CutPrefix(attr, `rel="`); ok {
				links[strings.TrimSuffix(rel, `"`)] = target
			}
		}
	}
	return links
}

// numberedPageURLs derives the URLs for pages 2..last from the next and
// last links. Returns nil when the header does not expose a numbered
// last page, in which case the caller walks next-links sequentially.
func numberedPageURLs(links map[string]string) []string {
	next, last := links["next"], links["last"]
	if next == "" || last == "" {
		return nil
	}

	lastURL, err := url.Parse(last)
	if err != nil {
		return nil
	}
	lastPage, err := strconv.Atoi(lastURL.Query().Get("page"))
	if err != nil || lastPage < 2 {
		return nil
	}

	nextURL, err := url.Parse(next)
	if err != nil {
		return nil
	}

	urls := make([]string, 0, lastPage-1)
	for p := 2; p <= lastPage; p++ {
		q := nextURL.Query()
		q.Set("page", strconv.Itoa(p))
		u := *nextURL
		u.RawQuery = q.Encode()
		urls = append(urls, u.String())
	}
	return urls
}
