package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FirstMatch walks candidates in order and returns the first selector that
// matches at least one element under root, together with its matches.
func FirstMatch(root *goquery.Selection, candidates []string) (string, *goquery.Selection, bool) {
	if root == nil {
		return "", nil, false
	}
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if found := root.Find(candidate); found.Length() > 0 {
			return candidate, found, true
		}
	}
	return "", nil, false
}

// fieldText returns the collapsed text of the first element matched by the
// first productive candidate, or "".
func fieldText(root *goquery.Selection, candidates []string) string {
	_, found, ok := FirstMatch(root, candidates)
	if !ok {
		return ""
	}
	return cleanText(found.First().Text())
}

// fieldLink returns the href of the first productive candidate resolved
// against base. The root element itself is considered when it is an anchor.
func fieldLink(root *goquery.Selection, candidates []string, base *url.URL) string {
	if href, ok := root.Attr("href"); ok && goquery.NodeName(root) == "a" {
		return resolveLink(href, base)
	}
	_, found, ok := FirstMatch(root, candidates)
	if !ok {
		return ""
	}
	href, _ := found.First().Attr("href")
	return resolveLink(href, base)
}

func resolveLink(href string, base *url.URL) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
