package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"codeberg.org/readeck/go-readability/v2"
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/google/uuid"

	"github.com/packratbot/packrat/internal/config"
	"github.com/packratbot/packrat/internal/pkg/logs"
)

const (
	fetchMaxRedirs = 5
	fetchUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// ExtractURL returns the first http(s) URL in the text, or "".
func ExtractURL(text string) string {
	return urlPattern.FindString(text)
}

type Page struct {
	URL      string
	Title    string
	Markdown string
}

// PageFetcher downloads a web page and reduces it to readable markdown.
type PageFetcher struct {
	client   *http.Client
	pagesDir string
	maxBytes int64
}

func NewPageFetcher(cfg config.ArchiveConfig) *PageFetcher {
	timeout := time.Duration(cfg.FetchTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return &PageFetcher{
		pagesDir: cfg.PagesDir,
		maxBytes: cfg.MaxPageBytes,
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= fetchMaxRedirs {
					return fmt.Errorf("too many redirects (max %d)", fetchMaxRedirs)
				}
				if isPrivateHost(req.URL.Hostname()) {
					return fmt.Errorf("redirect to private address blocked")
				}
				return nil
			},
			Timeout:   timeout,
			Transport: &http.Transport{ForceAttemptHTTP2: true},
		},
	}
}

// Fetch retrieves rawURL and extracts its main content as markdown.
func (f *PageFetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	parsed, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("only http and https URLs are allowed")
	}
	if isPrivateHost(parsed.Hostname()) {
		return nil, fmt.Errorf("access to private/internal addresses is not allowed")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept", "text/html, application/xhtml+xml, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	title, markdown := extractReadable(body, parsed)
	logs.CtxInfo(ctx, "[archive] fetched %s (%d chars, title=%q)", rawURL, len(markdown), title)

	return &Page{
		URL:      resp.Request.URL.String(),
		Title:    title,
		Markdown: markdown,
	}, nil
}

// SavePage writes the page markdown into the pages directory and returns
// the file path recorded on the archive row.
func (f *PageFetcher) SavePage(page *Page) (string, error) {
	if page == nil || page.Markdown == "" {
		return "", fmt.Errorf("page has no content")
	}
	if err := os.MkdirAll(f.pagesDir, 0o755); err != nil {
		return "", fmt.Errorf("create pages dir: %w", err)
	}

	name := fmt.Sprintf("%s-%s.md", time.Now().Format("20060102-150405"), uuid.NewString()[:8])
	path := filepath.Join(f.pagesDir, name)
	if err := os.WriteFile(path, []byte(page.Markdown), 0o644); err != nil {
		return "", fmt.Errorf("write page file: %w", err)
	}
	return path, nil
}

// extractReadable uses go-readability to extract the main content from
// HTML, then converts the cleaned HTML to markdown.
func extractReadable(body []byte, pageURL *url.URL) (title, markdown string) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		md, _ := htmltomarkdown.ConvertString(string(body))
		return "", md
	}

	title = article.Title()

	var buf bytes.Buffer
	if err := article.RenderHTML(&buf); err != nil {
		var tbuf bytes.Buffer
		_ = article.RenderText(&tbuf)
		return title, tbuf.String()
	}

	md, err := htmltomarkdown.ConvertString(buf.String())
	if err != nil {
		return title, buf.String()
	}

	if title != "" {
		markdown = "# " + title + "\n\n" + md
	} else {
		markdown = md
	}
	return title, markdown
}

// isPrivateHost checks whether a hostname resolves to a private/loopback
// address.
func isPrivateHost(host string) bool {
	if host == "localhost" || host == "metadata.google.internal" {
		return true
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		ip := net.ParseIP(host)
		if ip == nil {
			return false
		}
		return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
	}

	for _, ip := range ips {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() {
			return true
		}
	}
	return false
}

// hashtags in captions become archive tags.
var hashtagPattern = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)

func ExtractHashtags(text string) []string {
	matches := hashtagPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		tag := strings.ToLower(m[1])
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
