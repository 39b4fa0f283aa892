package xclient

import (
	"context"
	"time"

	"twarchive/internal/logging"
)

// Paginator drives a cursor endpoint until the cursor runs out.
type Paginator struct {
	// Fetch retrieves the page at cursor; page is the zero-based ordinal.
	Fetch func(ctx context.Context, cursor string, page int) (Result, error)
	// Handle consumes a page and returns the next cursor.
	Handle func(page int, res Result) (string, error)
	// Cooldown is slept between network pages to stay inside documented windows.
	Cooldown time.Duration
	Clock    Clock
	Log      logging.Sink
}

// Run walks pages from initial and returns how many were handled. An error
// from Fetch or Handle stops the walk; pages handled before it stay handled.
func (p *Paginator) Run(ctx context.Context, initial string) (int, error) {
	clock := p.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	log := logging.OrNop(p.Log)
	seen := make(map[string]struct{})
	cursor := initial
	pages := 0
	for {
		if _, dup := seen[cursor]; dup {
			log.Log(logging.LevelWarning, "cursor repeated, stopping", map[string]any{"cursor": cursor, "pages": pages})
			return pages, nil
		}
		seen[cursor] = struct{}{}

		res, err := p.Fetch(ctx, cursor, pages)
		if err != nil {
			return pages, err
		}
		next, err := p.Handle(pages, res)
		if err != nil {
			return pages, err
		}
		pages++
		if CursorDone(next) {
			return pages, nil
		}
		if p.Cooldown > 0 && !res.Cached {
			log.Log(logging.LevelInfo, "page cooldown", map[string]any{"seconds": int(p.Cooldown.Seconds())})
			if err := clock.Sleep(ctx, p.Cooldown); err != nil {
				return pages, err
			}
		}
		cursor = next
	}
}

// CursorDone reports an exhausted cursor. Legacy endpoints signal the end with "0".
func CursorDone(c string) bool { return c == "" || c == "0" }
