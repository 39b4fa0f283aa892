package jobs

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"twarchive/internal/logging"
	"twarchive/internal/model"
	"twarchive/internal/xclient"
)

const avatarDir = "avatars"

// DownloadAvatars stores every user's profile image and banner under
// outputDir/avatars once and records the relative paths on the users.
// Files already on disk are not fetched again. Individual download failures
// are logged and skipped.
func DownloadAvatars(ctx context.Context, req xclient.Requester, outputDir string, tl *model.Timeline, log logging.Sink) error {
	log = logging.OrNop(log)
	dir := filepath.Join(outputDir, avatarDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("avatars: %w", err)
	}
	fetched := 0
	for _, u := range tl.Users() {
		for _, a := range []struct {
			src   string
			kind  string
			local *string
		}{
			{u.ProfileImage, "profile", &u.ProfileImageLocal},
			{u.ProfileBanner, "banner", &u.ProfileBannerLocal},
		} {
			if a.src == "" {
				continue
			}
			name := avatarName(u.ID, a.kind, a.src)
			dst := filepath.Join(dir, name)
			if _, err := os.Stat(dst); err != nil {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := download(ctx, req, a.src, dst); err != nil {
					log.Log(logging.LevelWarning, "avatar download failed", map[string]any{"user": u.ID, "url": a.src, "error": err.Error()})
					continue
				}
				fetched++
			}
			*a.local = path.Join(avatarDir, name)
		}
		tl.SetUser(u)
	}
	log.Log(logging.LevelInfo, "avatars materialized", map[string]any{"fetched": fetched})
	return nil
}

func avatarName(id uint64, kind, src string) string {
	ext := ".jpg"
	if u, err := url.Parse(src); err == nil {
		if e := strings.ToLower(path.Ext(u.Path)); e != "" && len(e) <= 5 {
			ext = e
		}
	}
	return fmt.Sprintf("%d-%s%s", id, kind, ext)
}

func download(ctx context.Context, req xclient.Requester, src, dst string) error {
	resp, err := req.Send(ctx, xclient.Request{Method: http.MethodGet, URL: src, Header: http.Header{}})
	if err != nil {
		return err
	}
	if resp.Status != http.StatusOK {
		return fmt.Errorf("status %d", resp.Status)
	}
	tmp := dst + ".part"
	if err := os.WriteFile(tmp, resp.Body, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}
