package sugos

import (
	"context"
	"fmt"

	"github.com/hazyhaar/sugos/kit"
)

// LinksResponse is returned by the links endpoint.
type LinksResponse struct {
	Tenant string    `json:"tenant"`
	Count  int       `json:"count"`
	Links  LinkIndex `json:"links"`
}

// HistoryRequest selects one run by id, or the latest Limit runs.
type HistoryRequest struct {
	RunID string `json:"run_id,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// HistoryResponse lists recorded runs, newest first.
type HistoryResponse struct {
	Runs []RunResult `json:"runs"`
}

// ExportSummary is a run written to disk.
type ExportSummary struct {
	*RunResult
	Path string `json:"path,omitempty"`
}

func (s *Service) endpoint(name string, e kit.Endpoint) kit.Endpoint {
	return kit.Logging(s.logger, name)(e)
}

func (s *Service) tenantsEndpoint() kit.Endpoint {
	return s.endpoint("tenants", func(context.Context, any) (any, error) {
		return s.Tenants(), nil
	})
}

func (s *Service) linksEndpoint() kit.Endpoint {
	return s.endpoint("links", func(ctx context.Context, req any) (any, error) {
		r := req.(*Request)
		links, err := s.CollectLinks(ctx, *r)
		if err != nil {
			return nil, err
		}
		return &LinksResponse{Tenant: r.Tenant, Count: links.Count(), Links: links}, nil
	})
}

// exportEndpoint returns the RunResult with its archive bytes in memory.
func (s *Service) exportEndpoint() kit.Endpoint {
	return s.endpoint("export", func(ctx context.Context, req any) (any, error) {
		return s.Run(ctx, *req.(*Request))
	})
}

// exportToDiskEndpoint runs an export and writes the archive into OutputDir.
func (s *Service) exportToDiskEndpoint() kit.Endpoint {
	return s.endpoint("export_to_disk", func(ctx context.Context, req any) (any, error) {
		res, err := s.Run(ctx, *req.(*Request))
		if err != nil {
			return nil, err
		}
		out := &ExportSummary{RunResult: res}
		if res.HasArchive() {
			path, err := WriteArchive(ctx, res, s.config.OutputDir)
			if err != nil {
				return nil, fmt.Errorf("run %s: %w", res.RunID, err)
			}
			out.Path = path
		}
		return out, nil
	})
}

func (s *Service) historyEndpoint() kit.Endpoint {
	return s.endpoint("history", func(ctx context.Context, req any) (any, error) {
		r := req.(*HistoryRequest)
		if r.RunID != "" {
			return s.HistoryRun(ctx, r.RunID)
		}
		runs, err := s.History(ctx, r.Limit)
		if err != nil {
			return nil, err
		}
		if runs == nil {
			runs = []RunResult{}
		}
		return &HistoryResponse{Runs: runs}, nil
	})
}
