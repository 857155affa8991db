// Package catalog reads dataset and resource metadata from a CKAN-based
// humanitarian data catalog.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is returned when the catalog has no dataset with the requested name.
var ErrNotFound = errors.New("dataset not found")

// Resource is one downloadable file of a dataset.
type Resource struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Format string `json:"format" yaml:"format"`
	URL    string `json:"url" yaml:"url"`
}

// IsCSV reports whether the resource is declared as CSV.
func (r Resource) IsCSV() bool {
	return strings.EqualFold(r.Format, "csv")
}

// TimePeriod is the reference period a dataset covers.
type TimePeriod struct {
	Start   time.Time
	End     time.Time
	Ongoing bool
}

// EndYear returns the last year covered; ongoing periods end in the year of now.
func (p TimePeriod) EndYear(now time.Time) int {
	if p.Ongoing {
		return now.Year()
	}
	return p.End.Year()
}

// Dataset is a read-only snapshot of a catalog dataset.
type Dataset struct {
	ID           string
	Name         string
	Archived     bool
	CODLevel     string
	Source       string
	Organization string
	TimePeriod   TimePeriod
	Resources    []Resource
}

// Client queries the catalog action API.
type Client struct {
	site      string
	userAgent string
	http      *http.Client
}

// NewClient returns a client for the catalog at site (https://data.humdata.org).
func NewClient(site, userAgent string) *Client {
	return &Client{
		site:      strings.TrimRight(site, "/"),
		userAgent: userAgent,
		http:      &http.Client{Timeout: 60 * time.Second},
	}
}

type packageShowResponse struct {
	Success bool        `json:"success"`
	Result  packageJSON `json:"result"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"__type"`
	} `json:"error"`
}

type packageJSON struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Archived      bool       `json:"archived"`
	CODLevel      string     `json:"cod_level"`
	DatasetSource string     `json:"dataset_source"`
	DatasetDate   string     `json:"dataset_date"`
	Organization  *orgJSON   `json:"organization"`
	Resources     []Resource `json:"resources"`
}

type orgJSON struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	DisplayName string `json:"display_name"`
}

// Dataset fetches the dataset called name.
func (c *Client) Dataset(ctx context.Context, name string) (*Dataset, error) {
	u := c.site + "/api/3/action/package_show?id=" + url.QueryEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("package_show %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("package_show %s: HTTP %d", name, resp.StatusCode)
	}

	var body packageShowResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode package_show %s: %w", name, err)
	}
	if !body.Success {
		if body.Error != nil && body.Error.Type == "Not Found Error" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("package_show %s: unsuccessful response", name)
	}
	return body.Result.dataset()
}

func (p packageJSON) dataset() (*Dataset, error) {
	period, err := ParseTimePeriod(p.DatasetDate)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", p.Name, err)
	}
	d := &Dataset{
		ID:         p.ID,
		Name:       p.Name,
		Archived:   p.Archived,
		CODLevel:   p.CODLevel,
		Source:     p.DatasetSource,
		TimePeriod: period,
		Resources:  p.Resources,
	}
	if p.Organization != nil {
		d.Organization = p.Organization.DisplayName
		if d.Organization == "" {
			d.Organization = p.Organization.Title
		}
	}
	return d, nil
}

const periodLayout = "2006-01-02T15:04:05"

// ParseTimePeriod parses a dataset date such as
// "[2020-01-01T00:00:00 TO 2020-12-31T23:59:59]" or "[2019-06-01T00:00:00 TO *]".
// A bare date "2020-01-01" covers that single day.
func ParseTimePeriod(s string) (TimePeriod, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TimePeriod{}, errors.New("empty dataset date")
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	start, end, ranged := strings.Cut(inner, " TO ")
	if !ranged {
		end = start
	}

	var p TimePeriod
	var err error
	if p.Start, err = parsePeriodTime(start); err != nil {
		return TimePeriod{}, err
	}
	if strings.TrimSpace(end) == "*" {
		p.Ongoing = true
		return p, nil
	}
	if p.End, err = parsePeriodTime(end); err != nil {
		return TimePeriod{}, err
	}
	return p, nil
}

func parsePeriodTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(periodLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse dataset date %q: %w", s, err)
	}
	return t, nil
}

// FormatYearRange renders the period covering whole years first..last the way
// the catalog stores dataset dates.
func FormatYearRange(first, last int) string {
	start := time.Date(first, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(last, time.December, 31, 23, 59, 59, 0, time.UTC)
	return "[" + start.Format(periodLayout) + " TO " + end.Format(periodLayout) + "]"
}

// YearBounds returns the first and last instant of year, formatted like dataset dates.
func YearBounds(year int) (start, end string) {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).Format(periodLayout),
		time.Date(year, time.December, 31, 23, 59, 59, 0, time.UTC).Format(periodLayout)
}
