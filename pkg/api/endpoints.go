package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/cod-population/pkg/header"
	"github.com/hazyhaar/cod-population/pkg/ingest"
	"github.com/hazyhaar/cod-population/pkg/kit"
	"github.com/hazyhaar/cod-population/pkg/ledger"
)

// Shared request/response types used by both HTTP and MCP transports.

var (
	errInvalid  = kit.ErrInvalid
	errNoLedger = errors.New("run ledger not configured")
)

const (
	maxHeaders       = 500
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

// RunStore reads recorded runs. ledger.Ledger satisfies it.
type RunStore interface {
	LatestReport(ctx context.Context) (*ledger.Report, error)
	Runs(ctx context.Context, limit int) ([]ledger.Run, error)
}

type classifyHeadersReq struct {
	Headers  []string
	Level    int
	NonLatin []string
}

type rejectedHeader struct {
	Header string `json:"header"`
	Error  string `json:"error"`
}

type classifyHeadersResponse struct {
	header.Classification
	Demographics []header.Demographic `json:"demographics"`
	Rejected     []rejectedHeader     `json:"rejected,omitempty"`
}

type decodeHeaderReq struct {
	Header string
}

type listRunsReq struct {
	Limit int
}

type runsResponse struct {
	Runs []ledger.Run `json:"runs"`
}

// Endpoints are the inspection actions, wrapped with request IDs and logging.
type Endpoints struct {
	ClassifyHeaders kit.Endpoint
	DecodeHeader    kit.Endpoint
	LatestRun       kit.Endpoint
	ListRuns        kit.Endpoint

	runs RunStore
}

// NewEndpoints builds the endpoints. runs may be nil, in which case the run
// endpoints fail. nonLatin is the default list of non-Latin script suffixes
// used when a classify request gives none.
func NewEndpoints(runs RunStore, nonLatin []string, logger *slog.Logger) *Endpoints {
	if logger == nil {
		logger = slog.Default()
	}
	wrap := func(name string, ep kit.Endpoint) kit.Endpoint {
		return kit.Chain(kit.RequestID(), kit.Logging(logger, name))(ep)
	}
	return &Endpoints{
		ClassifyHeaders: wrap("classify_headers", classifyHeadersEndpoint(nonLatin)),
		DecodeHeader:    wrap("decode_header", decodeHeaderEndpoint()),
		LatestRun:       wrap("latest_run", latestRunEndpoint(runs)),
		ListRuns:        wrap("list_runs", listRunsEndpoint(runs)),
		runs:            runs,
	}
}

func classifyHeadersEndpoint(defaultNonLatin []string) kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req := request.(*classifyHeadersReq)
		if len(req.Headers) == 0 {
			return nil, fmt.Errorf("%w: headers array is empty", errInvalid)
		}
		if len(req.Headers) > maxHeaders {
			return nil, fmt.Errorf("%w: too many headers (max %d, got %d)", errInvalid, maxHeaders, len(req.Headers))
		}
		if req.Level < 0 || req.Level > ingest.MaxLevel {
			return nil, fmt.Errorf("%w: level must be between 0 and %d, got %d", errInvalid, ingest.MaxLevel, req.Level)
		}
		nonLatin := req.NonLatin
		if len(nonLatin) == 0 {
			nonLatin = defaultNonLatin
		}

		resp := classifyHeadersResponse{
			Classification: header.Classify(req.Headers, req.Level, nonLatin),
		}
		for _, h := range resp.Population {
			d, err := header.DecodeDemographic(h)
			if err != nil {
				resp.Rejected = append(resp.Rejected, rejectedHeader{Header: h, Error: err.Error()})
				continue
			}
			resp.Demographics = append(resp.Demographics, d)
		}
		return resp, nil
	}
}

func decodeHeaderEndpoint() kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req := request.(*decodeHeaderReq)
		if req.Header == "" {
			return nil, fmt.Errorf("%w: missing header", errInvalid)
		}
		return header.DecodeDemographic(req.Header)
	}
}

func latestRunEndpoint(runs RunStore) kit.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		if runs == nil {
			return nil, errNoLedger
		}
		return runs.LatestReport(ctx)
	}
}

func listRunsEndpoint(runs RunStore) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		if runs == nil {
			return nil, errNoLedger
		}
		limit := defaultRunsLimit
		if req, ok := request.(*listRunsReq); ok && req.Limit != 0 {
			limit = req.Limit
		}
		if limit < 1 || limit > maxRunsLimit {
			return nil, fmt.Errorf("%w: limit must be between 1 and %d, got %d", errInvalid, maxRunsLimit, limit)
		}
		list, err := runs.Runs(ctx, limit)
		if err != nil {
			return nil, err
		}
		return runsResponse{Runs: list}, nil
	}
}
