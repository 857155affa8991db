// Package tabular fetches delimited text files over HTTP or from disk and
// parses them into a header row plus data rows.
package tabular

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/hazyhaar/cod-population/pkg/normalize"
)

// ErrDownload marks a file that could not be retrieved, as opposed to one
// that was retrieved but could not be parsed.
var ErrDownload = errors.New("download failed")

// Table is a parsed file. Every row has exactly len(Headers) cells.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Column returns the index of the header equal to name (case-insensitive), or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Headers {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

// Client retrieves files. The zero value is not usable; call NewClient.
type Client struct {
	http      *http.Client
	userAgent string
	attempts  int
}

// NewClient returns a client that tries each HTTP download up to attempts times.
func NewClient(userAgent string, attempts int) *Client {
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		http:      &http.Client{Timeout: 10 * time.Minute},
		userAgent: userAgent,
		attempts:  attempts,
	}
}

// Rows fetches src and parses it using the named character encoding.
func (c *Client) Rows(ctx context.Context, src, enc string) (*Table, error) {
	rc, err := c.Open(ctx, src)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return Parse(rc, enc)
}

// Open returns the raw content of src, which is an http(s) URL, a file:// URL
// or a local path. Failures wrap ErrDownload.
func (c *Client) Open(ctx context.Context, src string) (io.ReadCloser, error) {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		f, err := os.Open(strings.TrimPrefix(src, "file://"))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDownload, err)
		}
		return f, nil
	}

	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: create request: %w", ErrDownload, err)
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d for %s", resp.StatusCode, src)
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				break
			}
			continue
		}
		return resp.Body, nil
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrDownload, src, lastErr)
}

// Parse reads comma-separated content. The first record is the header row;
// a leading byte order mark and surrounding spaces are removed from headers.
// Short rows are padded with empty cells and long rows truncated. Content
// with no header row yields an empty table.
func Parse(r io.Reader, enc string) (*Table, error) {
	e, err := Encoding(enc)
	if err != nil {
		return nil, err
	}
	if e != nil {
		r = transform.NewReader(r, e.NewDecoder())
	}

	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && string(b) == "\ufeff" {
		br.Discard(3)
	}

	cr := csv.NewReader(br)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return &Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	t := &Table{Headers: header}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(t.Rows)+2, err)
		}
		t.Rows = append(t.Rows, fit(record, len(header)))
	}
	return t, nil
}

func fit(record []string, n int) []string {
	if len(record) == n {
		return record
	}
	out := make([]string, n)
	copy(out, record)
	return out
}

// Encoding resolves a declared encoding name. UTF-8 variants return nil,
// meaning no transcoding is needed.
func Encoding(name string) (encoding.Encoding, error) {
	switch {
	case normalize.IsUTF8(name):
		return nil, nil
	case normalize.IsLatin1(name):
		return charmap.ISO8859_1, nil
	}
	e, err := htmlindex.Get(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", name, err)
	}
	return e, nil
}

// IsHashtagRow reports whether the first non-empty cell of rec contains '#',
// the marker of an HXL tag row.
func IsHashtagRow(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) == "" {
			continue
		}
		return strings.Contains(cell, "#")
	}
	return false
}

// IsBlank reports whether every cell of rec is empty or whitespace.
func IsBlank(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
