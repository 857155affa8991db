package kit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestChain_Order(t *testing.T) {
	var calls []string
	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				calls = append(calls, name)
				return next(ctx, req)
			}
		}
	}
	ep := Chain(mw("a"), mw("b"), mw("c"))(func(context.Context, any) (any, error) {
		calls = append(calls, "endpoint")
		return nil, nil
	})
	ep(context.Background(), nil)

	if got := strings.Join(calls, ","); got != "a,b,c,endpoint" {
		t.Errorf("call order = %s", got)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	ep := RequestID()(func(ctx context.Context, _ any) (any, error) {
		seen = GetRequestID(ctx)
		return nil, nil
	})

	ep(context.Background(), nil)
	if len(seen) != 36 {
		t.Errorf("generated request id = %q", seen)
	}

	ep(WithRequestID(context.Background(), "req-1"), nil)
	if seen != "req-1" {
		t.Errorf("request id = %q, want req-1", seen)
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	boom := errors.New("boom")

	ep := Logging(logger, "decode_header")(func(context.Context, any) (any, error) {
		return nil, boom
	})
	ctx := WithTransport(WithRequestID(context.Background(), "req-2"), "mcp")
	if _, err := ep(ctx, nil); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"level=WARN", "endpoint=decode_header", "transport=mcp", "request_id=req-2", "error=boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %s", out, want)
		}
	}
}

func TestGetTransport_DefaultsToHTTP(t *testing.T) {
	if got := GetTransport(context.Background()); got != "http" {
		t.Errorf("transport = %q", got)
	}
}
