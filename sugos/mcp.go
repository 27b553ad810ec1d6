package sugos

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/sugos/kit"
)

var requestProps = map[string]any{
	"tenant":      map[string]any{"type": "string", "description": "Configured tenant key"},
	"identifiers": map[string]any{"type": "string", "description": "Comma-separated person identifiers"},
	"username":    map[string]any{"type": "string", "description": "API username (default: configured credentials)"},
	"password":    map[string]any{"type": "string", "description": "API password (default: configured credentials)"},
}

// RegisterMCP registers the sugos tools on srv:
// sugos_tenants, sugos_links, sugos_export and sugos_history.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "sugos_tenants",
		Description: "List the configured tenants.",
		InputSchema: kit.InputSchema(map[string]any{}),
	}, s.tenantsEndpoint(), kit.DecodeArgs[struct{}]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "sugos_links",
		Description: "List the links of every order of the given identifiers, grouped by identifier and order. Downloads nothing.",
		InputSchema: kit.InputSchema(requestProps, "tenant", "identifiers"),
	}, s.linksEndpoint(), kit.DecodeArgs[Request]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "sugos_export",
		Description: "Export the attachments and links of the given identifiers into a zip archive written to the output directory. Returns the run report and archive path.",
		InputSchema: kit.InputSchema(requestProps, "tenant", "identifiers"),
	}, s.exportToDiskEndpoint(), kit.DecodeArgs[Request]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "sugos_history",
		Description: "List recent export runs, or fetch one run with its item outcomes.",
		InputSchema: kit.InputSchema(map[string]any{
			"run_id": map[string]any{"type": "string", "description": "Run id to fetch"},
			"limit":  map[string]any{"type": "integer", "description": "Number of runs to list (default 20)"},
		}),
	}, s.historyEndpoint(), kit.DecodeArgs[HistoryRequest]())
}
