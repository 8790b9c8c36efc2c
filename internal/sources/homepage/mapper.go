package homepage

import (
	"sort"
	"strings"
)

// MapBookmarks flattens bookmarks.yaml. The bookmark name is the title;
// abbr is used only when the name is blank. Entries without href are
// skipped.
func MapBookmarks(cfg BookmarksConfig) []Entry {
	var out []Entry
	for _, category := range cfg {
		for _, group := range sortedKeys(category) {
			for _, bookmarkMap := range category[group] {
				for _, name := range sortedKeys(bookmarkMap) {
					list := bookmarkMap[name]
					// Each bookmark has a list with a single entry
					if len(list) == 0 || list[0].Href == "" {
						continue
					}
					title := strings.TrimSpace(name)
					if title == "" {
						title = list[0].Abbr
					}
					out = append(out, Entry{Group: group, Title: title, URL: strings.TrimSpace(list[0].Href)})
				}
			}
		}
	}
	return out
}

// MapServices flattens services.yaml, one entry per service with an href.
func MapServices(cfg ServicesConfig) []Entry {
	var out []Entry
	for _, groupMap := range cfg {
		for _, group := range sortedKeys(groupMap) {
			for _, serviceMap := range groupMap[group] {
				for _, name := range sortedKeys(serviceMap) {
					props := serviceMap[name]
					if props.Href == "" {
						continue
					}
					out = append(out, Entry{Group: group, Title: strings.TrimSpace(name), URL: strings.TrimSpace(props.Href)})
				}
			}
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
