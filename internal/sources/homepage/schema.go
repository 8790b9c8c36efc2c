package homepage

// Kind selects which homepage file layout a document uses.
type Kind string

const (
	KindBookmarks Kind = "bookmarks"
	KindServices  Kind = "services"
)

// ParseKind maps a query value to a Kind. Empty means bookmarks.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case "", KindBookmarks:
		return KindBookmarks, true
	case KindServices:
		return KindServices, true
	default:
		return "", false
	}
}

// BookmarkEntry represents a single bookmark entry in bookmarks.yaml
type BookmarkEntry struct {
	Icon string `yaml:"icon"`
	Abbr string `yaml:"abbr"`
	Href string `yaml:"href"`
}

// BookmarkCategory is one category of bookmarks.yaml.
// The YAML structure is: - CategoryName: [ - BookmarkName: [{ icon, abbr, href }] ]
type BookmarkCategory map[string][]map[string][]BookmarkEntry

// BookmarksConfig is the root structure for bookmarks.yaml
type BookmarksConfig []BookmarkCategory

// ServicesConfig represents the top-level structure of services.yaml.
// Homepage uses dynamic keys: - Group: [ - ServiceName: { href, ... } ]
type ServicesConfig []map[string][]map[string]ServiceProps

// ServiceProps holds the service fields an import cares about.
type ServiceProps struct {
	Href        string `yaml:"href"`
	Icon        string `yaml:"icon,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Entry is a flattened link ready to become a bookmark.
type Entry struct {
	Group string
	Title string
	URL   string
}
