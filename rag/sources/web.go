package sources

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mudler/xlog"
	sitemap "github.com/oxffaa/gopher-parse-sitemap"
	"jaytaylor.com/html2text"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// GetWebPage fetches a page and converts it to plain text.
func GetWebPage(url string) (string, error) {
	resp, err := httpClient.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return html2text.FromString(string(body), html2text.Options{PrettyTables: true})
}

// GetWebSitemapContent walks a sitemap and returns the plain-text content of
// every page it lists. Pages that fail to fetch are skipped.
func GetWebSitemapContent(url string) (res []string, err error) {
	err = sitemap.ParseFromSite(url, func(e sitemap.Entry) error {
		xlog.Debug("Fetching sitemap page", "url", e.GetLocation())
		content, err := GetWebPage(e.GetLocation())
		if err != nil {
			xlog.Warn("Skipping sitemap page", "url", e.GetLocation(), "error", err)
			return nil
		}
		res = append(res, content)
		return nil
	})
	return
}
