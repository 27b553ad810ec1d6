package sugos

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/sugos/sugos/internal/archive"
	"github.com/hazyhaar/sugos/sugos/internal/normalize"
)

type normalized struct {
	payload Payload
	err     error
}

// process normalizes every item and writes the archive. Items are
// normalized in parallel; this goroutine is the only writer and consumes
// results strictly in item order, so sequence numbers and archive layout
// do not depend on scheduling.
func (s *Service) process(ctx context.Context, sess *session, items []Item, res *RunResult, log *slog.Logger) error {
	norm := normalize.New(normalize.Config{
		DownloadTimeout: s.config.Timeouts.Download.D(),
		LinkTimeout:     s.config.Timeouts.Link.D(),
		Logger:          log,
	}, sess.fetch, sess.client, s.conv)

	results := make([]chan normalized, len(items))
	for i := range results {
		results[i] = make(chan normalized, 1)
	}
	window := make(chan struct{}, s.config.Concurrency.Window)

	var g errgroup.Group
	g.SetLimit(s.config.Concurrency.Process)
	go func() {
		for i, it := range items {
			window <- struct{}{}
			g.Go(func() error {
				p, err := norm.Normalize(ctx, sess.token, it)
				results[i] <- normalized{payload: p, err: err}
				return nil
			})
		}
	}()

	log.Info("sugos: processing items", "items", len(items))
	pk := archive.New(res.StartedAt)
	res.Items = make([]ItemOutcome, 0, len(items))
	for i, it := range items {
		r := <-results[i]
		<-window
		res.Items = append(res.Items, s.place(pk, i, it, r, log))
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("sugos: run canceled: %w", err)
	}

	data, err := pk.Close()
	if err != nil {
		return err
	}
	t := pk.Tally()
	res.Total, res.Processed, res.Errors = t.Total, t.Processed, t.Errors

	if t.Processed == 0 {
		log.Warn("sugos: no item succeeded, archive dropped", "errors", t.Errors)
		res.Status = StatusNothingSucceeded
		return nil
	}
	res.Status = StatusOK
	if t.Errors > 0 {
		res.Status = StatusPartial
	}
	res.Archive = data
	res.ArchiveSize = len(data)
	res.ArchiveName = archive.Name(res.Tenant, res.StartedAt)
	return nil
}

func (s *Service) place(pk *archive.Packager, i int, it Item, r normalized, log *slog.Logger) ItemOutcome {
	out := ItemOutcome{Index: i, Owner: it.Owner, Kind: it.Kind, Name: it.Name()}
	ilog := log.With("identifier", it.Owner, "kind", it.Kind, "item", out.Name)

	pl, err := pk.Place(it.Owner, r.payload, r.err)
	out.Sequence = pl.Sequence
	switch {
	case r.err != nil:
		out.Message = r.err.Error()
		s.metrics.item(it.Kind, "failed")
		ilog.Warn("sugos: item failed", "sequence", pl.Sequence, "error", r.err)
		return out
	case err != nil:
		out.Message = err.Error()
		s.metrics.item(it.Kind, "failed")
		ilog.Error("sugos: archive write failed", "sequence", pl.Sequence, "error", err)
		return out
	}

	out.Path = pl.Path
	out.Size = pl.Size
	out.SHA256 = pl.SHA256
	out.Terminal = r.payload.Terminal
	out.Success = true
	out.Fallback = r.payload.Fallback
	if r.payload.Fallback {
		if r.payload.Cause != nil {
			out.Message = r.payload.Cause.Error()
		}
		s.metrics.item(it.Kind, "fallback")
		ilog.Warn("sugos: stored html fallback", "path", pl.Path)
		return out
	}
	s.metrics.item(it.Kind, "ok")
	ilog.Debug("sugos: item archived", "path", pl.Path, "terminal", out.Terminal)
	return out
}
