package homepage

import (
	"context"
	"errors"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/logger"
)

// Adder is the write half of a bookmark session. *bookmarks.Syncer
// implements it.
type Adder interface {
	AddBookmark(ctx context.Context, title, url string) (domain.Bookmark, error)
}

// Skipped records an entry that was not imported.
type Skipped struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// Report summarises an import.
type Report struct {
	Added   int       `json:"added"`
	Skipped []Skipped `json:"skipped"`
}

// Import validates each entry and adds the valid ones through a. Invalid
// entries and per-entry storage failures are reported and skipped. Losing
// the session aborts the import.
func Import(ctx context.Context, a Adder, entries []Entry, log logger.Logger) (Report, error) {
	report := Report{Skipped: []Skipped{}}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		title, url, err := domain.ValidateInput(e.Title, e.URL)
		if err != nil {
			report.Skipped = append(report.Skipped, Skipped{Title: e.Title, URL: e.URL, Reason: err.Error()})
			continue
		}

		if _, err := a.AddBookmark(ctx, title, url); err != nil {
			if errors.Is(err, domain.ErrNotAuthenticated) {
				return report, err
			}
			log.Warn("import entry failed", logger.String("url", url), logger.Error(err))
			report.Skipped = append(report.Skipped, Skipped{Title: title, URL: url, Reason: "storage error"})
			continue
		}
		report.Added++
	}

	log.Info("homepage import finished",
		logger.Int("added", report.Added),
		logger.Int("skipped", len(report.Skipped)))
	return report, nil
}
