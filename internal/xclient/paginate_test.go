package xclient_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twarchive/internal/xclient"
	"twarchive/internal/xclient/xclienttest"
)

type scripted struct {
	next   map[string]string
	cached map[string]bool
	fail   map[string]error
	asked  []string
}

func (s *scripted) fetch(_ context.Context, cursor string, _ int) (xclient.Result, error) {
	s.asked = append(s.asked, cursor)
	if err := s.fail[cursor]; err != nil {
		return xclient.Result{}, err
	}
	return xclient.Result{Body: []byte(s.next[cursor]), Cached: s.cached[cursor]}, nil
}

func (s *scripted) handle(_ int, res xclient.Result) (string, error) {
	return string(res.Body), nil
}

func TestPaginatorStopsOnEmptyCursor(t *testing.T) {
	s := &scripted{next: map[string]string{"-1": "a", "a": "b", "b": "0"}}
	clock := xclienttest.NewClock(epoch)
	p := xclient.Paginator{Fetch: s.fetch, Handle: s.handle, Clock: clock}

	pages, err := p.Run(context.Background(), "-1")
	require.NoError(t, err)
	assert.Equal(t, 3, pages)
	assert.Equal(t, []string{"-1", "a", "b"}, s.asked)
	assert.Empty(t, clock.Sleeps())
}

func TestPaginatorNeverRefetchesACursor(t *testing.T) {
	s := &scripted{next: map[string]string{"": "x", "x": "y", "y": "x"}}
	p := xclient.Paginator{Fetch: s.fetch, Handle: s.handle}

	pages, err := p.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 3, pages)
	assert.Equal(t, []string{"", "x", "y"}, s.asked)
}

func TestPaginatorKeepsHandledPagesOnFailure(t *testing.T) {
	boom := errors.New("terminal")
	s := &scripted{next: map[string]string{"-1": "a", "a": "b"}, fail: map[string]error{"b": boom}}
	p := xclient.Paginator{Fetch: s.fetch, Handle: s.handle}

	pages, err := p.Run(context.Background(), "-1")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, pages)
}

func TestPaginatorCooldownSkipsCachedPages(t *testing.T) {
	s := &scripted{
		next:   map[string]string{"-1": "a", "a": "b", "b": ""},
		cached: map[string]bool{"-1": true},
	}
	clock := xclienttest.NewClock(epoch)
	p := xclient.Paginator{Fetch: s.fetch, Handle: s.handle, Cooldown: 61 * time.Second, Clock: clock}

	pages, err := p.Run(context.Background(), "-1")
	require.NoError(t, err)
	assert.Equal(t, 3, pages)
	assert.Equal(t, []time.Duration{61 * time.Second}, clock.Sleeps())
}

func TestCursorDone(t *testing.T) {
	assert.True(t, xclient.CursorDone(""))
	assert.True(t, xclient.CursorDone("0"))
	assert.False(t, xclient.CursorDone("1234"))
}
