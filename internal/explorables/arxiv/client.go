package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
)

const (
	DefaultBaseURL   = "https://arxiv.org"
	DefaultExportURL = "https://export.arxiv.org"

	// maxDownloadBytes bounds memory use; size policy is applied by the caller.
	maxDownloadBytes = 64 << 20
)

// Metadata is the descriptive information of a paper.
type Metadata struct {
	Title    string
	Abstract string
}

// Client downloads papers and their metadata. All requests share one rate
// limiter because arXiv asks automated clients to throttle.
type Client struct {
	baseURL    string
	exportURL  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client. perSecond <= 0 disables throttling.
func NewClient(baseURL, exportURL string, perSecond float64) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if exportURL == "" {
		exportURL = DefaultExportURL
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		exportURL: strings.TrimRight(exportURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// FetchPDF downloads the PDF for id. A missing paper yields a NOT_FOUND error.
func (c *Client) FetchPDF(ctx context.Context, id string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	reqURL := fmt.Sprintf("%s/pdf/%s", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/pdf")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch pdf: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NewError(domain.CodeNotFound, "arXiv paper %s not found", id)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv returned status %d for %s", resp.StatusCode, id)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	return data, nil
}

type atomFeed struct {
	Entries []struct {
		Title   string `xml:"title"`
		Summary string `xml:"summary"`
	} `xml:"entry"`
}

// FetchMetadata loads the title and abstract of id from the export API.
func (c *Client) FetchMetadata(ctx context.Context, id string) (*Metadata, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("id_list", id)
	reqURL := c.exportURL + "/api/query?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv export returned status %d", resp.StatusCode)
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	if len(feed.Entries) == 0 {
		return nil, fmt.Errorf("no entry for %s", id)
	}
	md := &Metadata{
		Title:    collapseSpace(feed.Entries[0].Title),
		Abstract: collapseSpace(feed.Entries[0].Summary),
	}
	if md.Title == "" {
		return nil, fmt.Errorf("entry for %s has no title", id)
	}
	return md, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
