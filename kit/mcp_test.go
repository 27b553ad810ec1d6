package kit

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testImpl = &mcp.Implementation{Name: "kit-test", Version: "0.1.0"}

type echoReq struct {
	Text string `json:"text"`
}

func session(t *testing.T, register func(*mcp.Server)) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testImpl, nil)
	register(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Run(ctx, serverT) }()

	cs, err := mcp.NewClient(testImpl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		cs.Close()
		cancel()
	})
	return cs
}

func TestRegisterMCPTool(t *testing.T) {
	// WHAT: Endpoint results come back as JSON text; endpoint errors as tool errors.
	cs := session(t, func(srv *mcp.Server) {
		tool := &mcp.Tool{
			Name:        "echo",
			InputSchema: InputSchema(map[string]any{"text": map[string]any{"type": "string"}}, "text"),
		}
		RegisterMCPTool(srv, tool, func(ctx context.Context, req any) (any, error) {
			r := req.(*echoReq)
			if r.Text == "fail" {
				return nil, errors.New("boom")
			}
			return map[string]string{"text": r.Text, "transport": GetTransport(ctx)}, nil
		}, DecodeArgs[echoReq]())
	})

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: "echo", Arguments: map[string]any{"text": "hi"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %v", res.GetError())
	}
	text := res.Content[0].(*mcp.TextContent).Text
	if text != `{"text":"hi","transport":"mcp"}` {
		t.Fatalf("text = %s", text)
	}

	res, err = cs.CallTool(context.Background(), &mcp.CallToolParams{Name: "echo", Arguments: map[string]any{"text": "fail"}})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Fatal("expected tool error")
	}
}
