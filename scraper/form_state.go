package scraper

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// formStateFields are the hidden ASP.NET fields the portal rejects a post without.
var formStateFields = []string{"__VIEWSTATE", "__VIEWSTATEGENERATOR", "__EVENTVALIDATION"}

// ExtractFormState pulls the hidden view-state fields out of page so they can be echoed
// back in the next form post.
func ExtractFormState(page string) (url.Values, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("error parsing HTML: %w", err)
	}

	values := url.Values{}
	for _, name := range formStateFields {
		value, exists := doc.Find("#" + name).Attr("value")
		if !exists {
			return nil, fmt.Errorf("hidden field %s: %w", name, ErrElementNotFound)
		}
		values.Set(name, value)
	}
	return values, nil
}
