package jobs

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"twarchive/internal/config"
	"twarchive/internal/export"
	"twarchive/internal/logging"
	"twarchive/internal/model"
	"twarchive/internal/parse"
	"twarchive/internal/xclient"
)

// Graph archives follower, following and list membership graphs.
type Graph struct {
	Fetcher   *xclient.Fetcher
	Options   config.GraphConfig
	OutputDir string
	Workers   int
	Log       logging.Sink
}

// List is one archived list with its members.
type List struct {
	ID          uint64       `json:"id"`
	Slug        string       `json:"slug"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Mode        string       `json:"mode"`
	Owner       model.User   `json:"owner"`
	MemberCount int          `json:"member_count"`
	Members     []model.User `json:"members"`
}

func (g *Graph) log() logging.Sink { return logging.OrNop(g.Log) }

func (g *Graph) cooldown() xclient.Paginator {
	p := xclient.Paginator{Clock: g.Fetcher.Clock(), Log: g.log()}
	if g.Options.EnforceRateLimit {
		p.Cooldown = g.Options.Cooldown
	}
	return p
}

// VerifyCredentials resolves the account the user token belongs to.
func (g *Graph) VerifyCredentials(ctx context.Context) (model.User, error) {
	raw, _, err := xclient.FetchJSON[parse.RawUser](ctx, g.Fetcher, xclient.Call{
		Endpoint: xclient.EndpointVerifyCredentials,
		Params:   xclient.VerifyCredentialsParams(),
		Page:     -1,
		Auth:     xclient.AuthUser,
	})
	if err != nil {
		return model.User{}, err
	}
	return parse.User(&raw), nil
}

// Followers archives the accounts following screenName to
// <output>/<screenName>-followers.json.
func (g *Graph) Followers(ctx context.Context, screenName string) ([]model.User, error) {
	return g.people(ctx, xclient.EndpointFollowersIDs, screenName, "followers")
}

// Following archives the accounts screenName follows to
// <output>/<screenName>-following.json.
func (g *Graph) Following(ctx context.Context, screenName string) ([]model.User, error) {
	return g.people(ctx, xclient.EndpointFriendsIDs, screenName, "following")
}

func (g *Graph) people(ctx context.Context, endpoint, screenName, suffix string) ([]model.User, error) {
	ids, err := g.ids(ctx, endpoint, screenName)
	if err != nil {
		return nil, err
	}
	users, err := g.lookupUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	file := filepath.Join(g.OutputDir, screenName+"-"+suffix+".json")
	if err := export.WriteJSON(file, users); err != nil {
		return nil, err
	}
	g.log().Log(logging.LevelInfo, suffix+" archived", map[string]any{"ids": len(ids), "users": len(users), "file": file})
	return users, nil
}

// ids pages an id-list endpoint from cursor -1. Pages handled before a
// terminal failure are kept.
func (g *Graph) ids(ctx context.Context, endpoint, screenName string) ([]uint64, error) {
	var ids []uint64
	var page parse.CursorPage
	p := g.cooldown()
	p.Fetch = func(ctx context.Context, cursor string, n int) (xclient.Result, error) {
		resp, res, err := xclient.FetchJSON[parse.CursorPage](ctx, g.Fetcher, xclient.Call{
			Endpoint: endpoint,
			Params:   xclient.GraphIDsParams(screenName, cursor),
			Page:     n,
			Auth:     xclient.AuthUser,
		})
		page = resp
		return res, err
	}
	p.Handle = func(int, xclient.Result) (string, error) {
		for _, id := range page.IDs {
			if id != 0 {
				ids = append(ids, uint64(id))
			}
		}
		return page.NextCursorStr, nil
	}
	pages, err := p.Run(ctx, "-1")
	if err != nil && !xclient.IsTerminal(err) {
		return nil, err
	}
	if err != nil {
		g.log().Log(logging.LevelWarning, "id pages stopped", map[string]any{"endpoint": endpoint, "pages": pages, "error": err.Error()})
	}
	return ids, nil
}

// lookupUsers resolves ids 100 at a time, keeping the order of ids. The
// batch index is the page ordinal of each cached lookup.
func (g *Graph) lookupUsers(ctx context.Context, ids []uint64) ([]model.User, error) {
	var chunks [][]uint64
	for i := 0; i < len(ids); i += xclient.LookupBatch {
		chunks = append(chunks, ids[i:min(i+xclient.LookupBatch, len(ids))])
	}
	results := make([][]model.User, len(chunks))
	var mu sync.Mutex
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(max(1, g.Workers))
	for i, chunk := range chunks {
		i, chunk := i, chunk
		eg.Go(func() error {
			raws, _, err := xclient.FetchJSON[[]parse.RawUser](ectx, g.Fetcher, xclient.Call{
				Endpoint: xclient.EndpointUsersLookup,
				Params:   xclient.UsersLookupParams(chunk),
				Page:     i,
				Auth:     xclient.AuthUser,
			})
			if xclient.IsTerminal(err) {
				g.log().Log(logging.LevelWarning, "user lookup failed", map[string]any{"batch": i, "error": err.Error()})
				return nil
			}
			if err != nil {
				return err
			}
			byID := make(map[uint64]model.User, len(raws))
			for j := range raws {
				u := parse.User(&raws[j])
				byID[u.ID] = u
			}
			var out []model.User
			for _, id := range chunk {
				if u, ok := byID[id]; ok {
					out = append(out, u)
				}
			}
			mu.Lock()
			results[i] = out
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	users := []model.User{}
	for _, r := range results {
		users = append(users, r...)
	}
	return users, nil
}

// Lists archives the lists screenName owns, subscribes to and is a member
// of. Lists owned by someone else are skipped unless IncludeForeignLists.
func (g *Graph) Lists(ctx context.Context, screenName string) ([]List, error) {
	var lists []List
	seen := make(map[uint64]struct{})
	for _, endpoint := range []string{
		xclient.EndpointListsOwnerships,
		xclient.EndpointListsSubscription,
		xclient.EndpointListsMemberships,
	} {
		found, err := g.listPage(ctx, endpoint, screenName)
		if err != nil {
			return nil, err
		}
		for _, l := range found {
			if _, dup := seen[l.ID]; dup {
				continue
			}
			seen[l.ID] = struct{}{}
			if !g.Options.IncludeForeignLists && !strings.EqualFold(l.Owner.ScreenName, screenName) {
				g.log().Log(logging.LevelDebug, "foreign list skipped", map[string]any{"list": l.Slug, "owner": l.Owner.ScreenName})
				continue
			}
			lists = append(lists, l)
		}
	}
	for i := range lists {
		members, err := g.members(ctx, lists[i].ID)
		if err != nil {
			return nil, err
		}
		lists[i].Members = members
		file := filepath.Join(g.OutputDir, lists[i].Owner.ScreenName+"-list-"+lists[i].Slug+".json")
		if err := export.WriteJSON(file, lists[i]); err != nil {
			return nil, err
		}
	}
	g.log().Log(logging.LevelInfo, "lists archived", map[string]any{"lists": len(lists)})
	return lists, nil
}

func (g *Graph) listPage(ctx context.Context, endpoint, screenName string) ([]List, error) {
	var out []List
	var page parse.CursorPage
	p := g.cooldown()
	p.Fetch = func(ctx context.Context, cursor string, n int) (xclient.Result, error) {
		resp, res, err := xclient.FetchJSON[parse.CursorPage](ctx, g.Fetcher, xclient.Call{
			Endpoint: endpoint,
			Params:   xclient.ListsParams(screenName, cursor),
			Page:     n,
			Auth:     xclient.AuthUser,
		})
		page = resp
		return res, err
	}
	p.Handle = func(int, xclient.Result) (string, error) {
		for i := range page.Lists {
			raw := &page.Lists[i]
			out = append(out, List{
				ID:          raw.ListID(),
				Slug:        raw.Slug,
				Name:        raw.Name,
				Description: raw.Description,
				Mode:        raw.Mode,
				Owner:       parse.User(&raw.User),
				MemberCount: int(raw.MemberCount),
			})
		}
		return page.NextCursorStr, nil
	}
	pages, err := p.Run(ctx, "-1")
	if err != nil && !xclient.IsTerminal(err) {
		return nil, err
	}
	if err != nil {
		g.log().Log(logging.LevelWarning, "list pages stopped", map[string]any{"endpoint": endpoint, "pages": pages, "error": err.Error()})
	}
	return out, nil
}

func (g *Graph) members(ctx context.Context, listID uint64) ([]model.User, error) {
	members := []model.User{}
	var page parse.CursorPage
	p := g.cooldown()
	p.Fetch = func(ctx context.Context, cursor string, n int) (xclient.Result, error) {
		resp, res, err := xclient.FetchJSON[parse.CursorPage](ctx, g.Fetcher, xclient.Call{
			Endpoint: xclient.EndpointListsMembers,
			Params:   xclient.ListMembersParams(listID, cursor),
			Page:     n,
			Auth:     xclient.AuthUser,
		})
		page = resp
		return res, err
	}
	p.Handle = func(int, xclient.Result) (string, error) {
		for i := range page.Users {
			members = append(members, parse.User(&page.Users[i]))
		}
		return page.NextCursorStr, nil
	}
	pages, err := p.Run(ctx, "-1")
	if err != nil && !xclient.IsTerminal(err) {
		return nil, err
	}
	if err != nil {
		g.log().Log(logging.LevelWarning, "member pages stopped", map[string]any{"list": listID, "pages": pages, "error": err.Error()})
	}
	return members, nil
}
