package jobs

import (
	"context"
	"errors"
	"strconv"
	"time"

	"twarchive/internal/config"
	"twarchive/internal/export"
	"twarchive/internal/ingest"
	"twarchive/internal/logging"
	"twarchive/internal/metrics"
	"twarchive/internal/model"
	"twarchive/internal/store/statedb"
	"twarchive/internal/xclient"
)

const (
	sinceCursorKey = "compile:since_id"
	kindCompile    = "compile"
)

// Compiler runs the reconciler for one configuration and writes the result.
type Compiler struct {
	Fetcher *xclient.Fetcher
	Config  config.Config
	// DB is optional; without it runs and the since-id cursor are not kept.
	DB *statedb.DB
	// Requester downloads avatars when storage.downloadAvatars is set.
	Requester xclient.Requester
	Log       logging.Sink
}

// Compile reconciles every enabled source, drops unresolved entries, sorts
// and writes the timeline file. The written timeline is returned.
func (c *Compiler) Compile(ctx context.Context) (*model.Timeline, error) {
	log := logging.OrNop(c.Log)
	clock := c.Fetcher.Clock()
	start := time.Now()
	metrics.CompileRuns.Inc()

	var runID string
	if c.DB != nil {
		id, err := c.DB.StartRun(ctx, kindCompile, clock.Now())
		if err != nil {
			log.Log(logging.LevelWarning, "run not recorded", map[string]any{"error": err.Error()})
		}
		runID = id
	}

	tl, err := c.compile(ctx, log)
	if runID != "" {
		tweets, users := 0, 0
		if tl != nil {
			tweets, users = tl.Len(), tl.CountUsers()
		}
		if ferr := c.DB.FinishRun(ctx, runID, clock.Now(), tweets, users, err); ferr != nil {
			log.Log(logging.LevelWarning, "run not closed", map[string]any{"run": runID, "error": ferr.Error()})
		}
	}
	if err != nil {
		metrics.CompileErrors.Inc()
		return nil, err
	}
	metrics.ObserveCompileDuration(start)
	log.Log(logging.LevelInfo, "compile done", map[string]any{
		"run":    runID,
		"tweets": tl.Len(),
		"users":  tl.CountUsers(),
		"file":   c.Config.TimelineFile(),
	})
	return tl, nil
}

func (c *Compiler) compile(ctx context.Context, log logging.Sink) (*model.Timeline, error) {
	cfg := c.Config
	src := ingest.Sources{Adaptive: cfg.Sources.Adaptive, APISearch: cfg.Sources.APISearch}
	if cfg.Sources.Archive {
		src.ArchiveDir = cfg.Archive.Dir
	}
	if cfg.Sources.Import != "" {
		imported, err := export.ReadTimeline(cfg.Sources.Import)
		if err != nil {
			log.Log(logging.LevelWarning, "import source skipped", map[string]any{"error": err.Error()})
		} else {
			src.Import = imported
		}
	}

	opts := cfg.SourceOptions()
	if opts.AccountID == 0 && src.ArchiveDir != "" {
		g := &Graph{Fetcher: c.Fetcher, Log: log}
		me, err := g.VerifyCredentials(ctx)
		switch {
		case err == nil:
			opts.AccountID = me.ID
		case xclient.IsTerminal(err):
			log.Log(logging.LevelWarning, "account id unresolved", map[string]any{"error": err.Error()})
		default:
			return nil, err
		}
	}
	if cfg.Sources.SinceLast && c.DB != nil {
		v, err := c.DB.LoadCursor(ctx, sinceCursorKey)
		switch {
		case err == nil:
			opts.SinceID, _ = strconv.ParseUint(v, 10, 64)
		case !errors.Is(err, statedb.ErrNotFound):
			log.Log(logging.LevelWarning, "since cursor unreadable", map[string]any{"error": err.Error()})
		}
	}

	st, err := ingest.New(c.Fetcher, opts).Run(ctx, src)
	if err != nil {
		return nil, err
	}
	tl := Fold(st, log)
	tl.SortBy(sortKey(cfg.Sources.Sort))

	if cfg.Storage.DownloadAvatars && c.Requester != nil {
		if err := DownloadAvatars(ctx, c.Requester, cfg.Storage.OutputDir, tl, log); err != nil {
			return nil, err
		}
	}
	if err := export.WriteTimeline(cfg.TimelineFile(), tl); err != nil {
		return nil, err
	}
	if c.DB != nil && tl.Len() > 0 {
		if err := c.DB.SaveCursor(ctx, sinceCursorKey, strconv.FormatUint(maxID(tl), 10)); err != nil {
			log.Log(logging.LevelWarning, "since cursor not saved", map[string]any{"error": err.Error()})
		}
	}
	return tl, nil
}

// Fold moves the resolved part of st into a Timeline. Placeholders no source
// filled are dropped with a warning.
func Fold(st *ingest.State, log logging.Sink) *model.Timeline {
	log = logging.OrNop(log)
	tl := model.NewTimeline()
	for _, id := range st.IDs() {
		t := st.Timeline[id]
		if t == nil {
			log.Log(logging.LevelWarning, "unresolved tweet dropped", map[string]any{"id": id})
			metrics.DroppedTweets.Inc()
			continue
		}
		tl.Set(t)
	}
	for _, u := range st.Users {
		tl.SetUser(u)
	}
	return tl
}

func sortKey(name string) func(a, b *model.Tweet) bool {
	switch name {
	case "retweets":
		return model.ByRetweetsDesc
	case "likes":
		return model.ByFavoritesDesc
	}
	return model.ByIDDesc
}

func maxID(tl *model.Timeline) uint64 {
	var top uint64
	for _, t := range tl.Tweets() {
		if t.ID > top {
			top = t.ID
		}
	}
	return top
}
