package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hazyhaar/cod-population/pkg/header"
	"github.com/hazyhaar/cod-population/pkg/kit"
	"github.com/hazyhaar/cod-population/pkg/ledger"
)

type fakeRuns struct {
	report *ledger.Report
	runs   []ledger.Run
	limit  int
}

func (f *fakeRuns) LatestReport(context.Context) (*ledger.Report, error) {
	if f.report == nil {
		return nil, ledger.ErrNoRuns
	}
	return f.report, nil
}

func (f *fakeRuns) Runs(_ context.Context, limit int) ([]ledger.Run, error) {
	f.limit = limit
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func newServer(t *testing.T, runs RunStore) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewRouter(NewEndpoints(runs, []string{"ar", "ru"}, nil)))
	t.Cleanup(srv.Close)
	return srv
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestClassifyHeaders(t *testing.T) {
	srv := newServer(t, nil)

	body := `{"headers":["ADM1_PCODE","ADM1_FR","ADM1_AR","T_TL","F_00_04","F_4540","notes"],"level":1}`
	resp, err := http.Post(srv.URL+"/v1/headers/classify", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}

	var got struct {
		Admin struct {
			Codes map[string]header.Match `json:"codes"`
			Names map[string]header.Match `json:"names"`
		} `json:"admin"`
		Population   []string             `json:"population"`
		Unrecognized []string             `json:"unrecognized"`
		Demographics []header.Demographic `json:"demographics"`
		Rejected     []rejectedHeader     `json:"rejected"`
	}
	decodeBody(t, resp, &got)

	if diff := cmp.Diff([]string{"ADM1_PCODE"}, got.Admin.Codes["1"].Headers); diff != "" {
		t.Errorf("codes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"ADM1_FR"}, got.Admin.Names["1"].Headers); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"T_TL", "F_00_04", "F_4540"}, got.Population); diff != "" {
		t.Errorf("population mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"ADM1_AR", "notes"}, got.Unrecognized); diff != "" {
		t.Errorf("unrecognized mismatch (-want +got):\n%s", diff)
	}
	if len(got.Demographics) != 2 || got.Demographics[1].AgeRange != "0-4" {
		t.Errorf("demographics = %+v", got.Demographics)
	}
	if len(got.Rejected) != 1 || got.Rejected[0].Header != "F_4540" {
		t.Errorf("rejected = %+v", got.Rejected)
	}
}

func TestClassifyHeaders_BadRequests(t *testing.T) {
	srv := newServer(t, nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{"headers":`, http.StatusBadRequest},
		{"empty headers", `{"headers":[],"level":1}`, http.StatusBadRequest},
		{"level too deep", `{"headers":["T_TL"],"level":5}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/v1/headers/classify", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	resp, err := http.Get(srv.URL + "/v1/headers/classify")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET classify status = %d", resp.StatusCode)
	}
}

func TestDecodeHeader(t *testing.T) {
	srv := newServer(t, nil)

	tests := []struct {
		header string
		status int
		want   string
	}{
		{"F_15_19", http.StatusOK, "15-19"},
		{"t_80plus", http.StatusOK, "80+"},
		{"M_TL", http.StatusOK, "all"},
		{"F_45_40", http.StatusUnprocessableEntity, ""},
		{"F_00045", http.StatusUnprocessableEntity, ""},
		{"Population", http.StatusUnprocessableEntity, ""},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/v1/headers/decode/" + tt.header)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.status {
				resp.Body.Close()
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.status != http.StatusOK {
				resp.Body.Close()
				return
			}
			var d header.Demographic
			decodeBody(t, resp, &d)
			if d.AgeRange != tt.want {
				t.Errorf("age range = %q, want %q", d.AgeRange, tt.want)
			}
		})
	}
}

func TestRuns(t *testing.T) {
	srv := newServer(t, nil)
	resp, err := http.Get(srv.URL + "/v1/runs/latest")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("no ledger: status = %d", resp.StatusCode)
	}

	runs := &fakeRuns{}
	srv = newServer(t, runs)
	resp, _ = http.Get(srv.URL + "/v1/runs/latest")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("empty ledger: status = %d", resp.StatusCode)
	}

	runs.runs = []ledger.Run{{ID: "r2", Status: ledger.StatusDone}, {ID: "r1", Status: ledger.StatusFailed}}
	runs.report = &ledger.Report{Run: runs.runs[0]}
	resp, _ = http.Get(srv.URL + "/v1/runs/latest")
	var rep ledger.Report
	decodeBody(t, resp, &rep)
	if rep.Run.ID != "r2" {
		t.Errorf("latest run = %+v", rep.Run)
	}

	resp, _ = http.Get(srv.URL + "/v1/runs?limit=1")
	var list runsResponse
	decodeBody(t, resp, &list)
	if len(list.Runs) != 1 || runs.limit != 1 {
		t.Errorf("runs = %+v, limit = %d", list.Runs, runs.limit)
	}

	for _, q := range []string{"?limit=abc", "?limit=1000"} {
		resp, _ = http.Get(srv.URL + "/v1/runs" + q)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("runs%s: status = %d", q, resp.StatusCode)
		}
	}

	resp, _ = http.Get(srv.URL + "/v1/health")
	var health healthResponse
	decodeBody(t, resp, &health)
	if health.Status != "ok" || !health.Ledger || health.LastRunID != "r2" {
		t.Errorf("health = %+v", health)
	}
}

func TestRequestID_Echoed(t *testing.T) {
	srv := newServer(t, nil)
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestMCPDecoders(t *testing.T) {
	var req mcp.CallToolRequest
	req.Params.Arguments = map[string]any{
		"headers":   "ADM1_PCODE, ADM1_EN ,T_TL,",
		"level":     float64(1),
		"non_latin": "ar",
	}
	res, err := decodeClassifyHeaders(req)
	if err != nil {
		t.Fatal(err)
	}
	want := &classifyHeadersReq{Headers: []string{"ADM1_PCODE", "ADM1_EN", "T_TL"}, Level: 1, NonLatin: []string{"ar"}}
	if diff := cmp.Diff(want, res.Request); diff != "" {
		t.Errorf("classify request mismatch (-want +got):\n%s", diff)
	}

	req.Params.Arguments = map[string]any{"header": " F_0_4 "}
	res, err = decodeDecodeHeader(req)
	if err != nil {
		t.Fatal(err)
	}
	if r := res.Request.(*decodeHeaderReq); r.Header != "F_0_4" {
		t.Errorf("header = %q", r.Header)
	}
}

func TestMCPListRuns(t *testing.T) {
	runs := &fakeRuns{runs: []ledger.Run{{ID: "r3"}, {ID: "r2"}, {ID: "r1"}}}
	h := kit.MCPHandler(NewEndpoints(runs, nil, nil).ListRuns, decodeListRuns)

	call := func(args map[string]any) *mcp.CallToolResult {
		var req mcp.CallToolRequest
		req.Params.Arguments = args
		res, err := h(context.Background(), req)
		if err != nil {
			t.Fatalf("handler error: %v", err)
		}
		return res
	}

	res := call(map[string]any{"limit": float64(2)})
	if res.IsError {
		t.Fatalf("list_runs failed: %+v", res)
	}
	var list runsResponse
	if err := json.Unmarshal([]byte(res.Content[0].(mcp.TextContent).Text), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Runs) != 2 || list.Runs[0].ID != "r3" || runs.limit != 2 {
		t.Errorf("runs = %+v, limit = %d", list.Runs, runs.limit)
	}

	call(nil)
	if runs.limit != defaultRunsLimit {
		t.Errorf("default limit = %d", runs.limit)
	}

	for _, limit := range []float64{1.5, 500} {
		res := call(map[string]any{"limit": limit})
		text := res.Content[0].(mcp.TextContent).Text
		if !res.IsError || !strings.HasPrefix(text, "invalid arguments (request ") {
			t.Errorf("limit %v: result = %q", limit, text)
		}
	}
}
