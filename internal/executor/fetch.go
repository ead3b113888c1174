package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrFetchDisabled  = errors.New("web fetch disabled; set executor.enable_dangerous_tools")
	ErrFetchScheme    = errors.New("only http(s) URLs allowed")
	ErrHostNotAllowed = errors.New("host not in web allowlist")
)

const defaultFetchMaxLen = 200_000

type FetchResult struct {
	URL       string `json:"url"`
	Status    int    `json:"status"`
	Truncated bool   `json:"truncated"`
	Content   string `json:"content"`
}

// Fetcher performs allow-listed GET requests. An empty allowlist permits any host.
type Fetcher struct {
	Enabled   bool
	Allowlist []string
	MaxChars  int
	Client    *http.Client
}

func (f *Fetcher) Check(raw string) (*url.URL, error) {
	if !f.Enabled {
		return nil, ErrFetchDisabled
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, ErrFetchScheme
	}
	host := strings.ToLower(u.Hostname())
	if len(f.Allowlist) == 0 {
		return u, nil
	}
	for _, d := range f.Allowlist {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" && (host == d || strings.HasSuffix(host, "."+d)) {
			return u, nil
		}
	}
	return nil, ErrHostNotAllowed
}

func (f *Fetcher) Fetch(ctx context.Context, raw string) (FetchResult, error) {
	u, err := f.Check(raw)
	if err != nil {
		return FetchResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return FetchResult{}, err
	}
	req.Header.Set("User-Agent", "CouncilGuardian/1.0")

	c := f.Client
	if c == nil {
		c = &http.Client{Timeout: 20 * time.Second}
	}
	resp, err := c.Do(req)
	if err != nil {
		return FetchResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return FetchResult{}, fmt.Errorf("fetch %s: http %d", u.Host, resp.StatusCode)
	}

	max := f.MaxChars
	if max <= 0 {
		max = defaultFetchMaxLen
	}
	// Read a little past the cap in bytes; the cap itself applies to characters.
	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(max)*4+1))
	if err != nil {
		return FetchResult{}, err
	}
	text := []rune(string(data))
	res := FetchResult{URL: u.String(), Status: resp.StatusCode}
	if len(text) > max {
		text = text[:max]
		res.Truncated = true
	}
	res.Content = string(text)
	return res, nil
}
