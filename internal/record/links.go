package record

import (
	"encoding/json"
	"fmt"
)

// LinkList accepts the three wire formats clients send for links: a
// single URL string, an array of URL strings, or an array of link
// objects. All normalize to []Link.
type LinkList []Link

func (l *LinkList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = LinkList{{URL: single}}
		return nil
	}

	var urls []string
	if err := json.Unmarshal(data, &urls); err == nil {
		out := make(LinkList, len(urls))
		for i, u := range urls {
			out[i] = Link{URL: u}
		}
		*l = out
		return nil
	}

	var links []Link
	if err := json.Unmarshal(data, &links); err != nil {
		return fmt.Errorf("links must be a URL string, an array of URLs, or an array of link objects: %w", err)
	}
	*l = LinkList(links)
	return nil
}
