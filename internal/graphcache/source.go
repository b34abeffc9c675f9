package graphcache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/feinschmecker/internal/checksum"
	"github.com/starford/feinschmecker/internal/retry"
	"github.com/starford/feinschmecker/internal/storage"
)

func isRemote(loc string) bool {
	return strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://")
}

// resolve waits for loc to become available and returns a local path to
// read it from. Remote sources are downloaded into the cache directory.
func (c *Cache) resolve(ctx context.Context, loc string) (string, error) {
	if err := c.wait(ctx, loc); err != nil {
		return "", err
	}
	if !isRemote(loc) {
		return filepath.Abs(loc)
	}
	return c.download(ctx, loc)
}

func (c *Cache) wait(ctx context.Context, loc string) error {
	deadline := time.Now().Add(c.cfg.WaitTimeout)
	for {
		err := c.available(ctx, loc)
		if err == nil {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("source %s not available: %w", loc, err)
		}
		if serr := retry.Sleep(ctx, c.cfg.WaitPoll); serr != nil {
			return serr
		}
	}
}

func (c *Cache) available(ctx context.Context, loc string) error {
	if !isRemote(loc) {
		_, err := os.Stat(loc)
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, loc, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("HEAD %s: %s", loc, resp.Status)
	}
	return nil
}

// download fetches loc into the cache directory with an atomic write and
// returns the absolute path of the copy.
func (c *Cache) download(ctx context.Context, loc string) (string, error) {
	if c.cfg.CacheDir == "" {
		return "", fmt.Errorf("remote source %s needs a cache directory", loc)
	}
	files, err := storage.NewFS(c.cfg.CacheDir)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", loc, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: %s", loc, resp.Status)
	}
	name := cacheName(loc)
	err = files.WriteFrom(name, func(w io.Writer) error {
		_, err := io.Copy(w, resp.Body)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("download %s: %w", loc, err)
	}
	return files.Abs(name)
}

// cacheName derives a stable file name for a remote location.
func cacheName(loc string) string {
	base := "graph.nt"
	if u, err := url.Parse(loc); err == nil {
		if b := path.Base(u.Path); b != "" && b != "/" && b != "." {
			base = b
		}
	}
	return checksum.Sum([]byte(loc))[:12] + "-" + base
}
