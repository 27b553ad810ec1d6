package sugos

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/sugos/sugos/internal/model"
)

// collected is the phase 1 result of one identifier.
type collected struct {
	items []Item
	links IdentifierLinks
}

// collect enumerates the orders, attachments and links of every identifier.
// Identifiers are looked up in parallel but results keep identifier order,
// and within an identifier: order by order, attachments before links.
// Lookup failures degrade to empty results; only cancellation is an error.
func (s *Service) collect(ctx context.Context, sess *session, ids []string, log *slog.Logger) ([]Item, LinkIndex, error) {
	slots := make([]collected, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency.Lookup)
	for i, id := range ids {
		g.Go(func() error {
			slots[i] = s.collectOne(gctx, sess, id, log.With("identifier", id))
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var items []Item
	links := make(LinkIndex, 0, len(ids))
	for _, c := range slots {
		items = append(items, c.items...)
		links = append(links, c.links)
	}
	log.Info("sugos: collection finished", "identifiers", len(ids), "items", len(items), "links", links.Count())
	return items, links, nil
}

func (s *Service) collectOne(ctx context.Context, sess *session, id string, log *slog.Logger) collected {
	out := collected{links: IdentifierLinks{Identifier: id, Orders: []OrderLinks{}}}

	orders, err := sess.client.SearchOrders(ctx, sess.token, id)
	if err != nil {
		s.metrics.lookupFailure("search")
		log.Warn("sugos: order search failed, identifier skipped", "error", err)
		return out
	}
	log.Debug("sugos: orders found", "orders", len(orders))

	for _, o := range orders {
		if ctx.Err() != nil {
			return out
		}
		d, err := sess.client.OrderDetail(ctx, sess.token, o.ID)
		if err != nil {
			s.metrics.lookupFailure("detail")
			log.Warn("sugos: order detail failed, order skipped", "order_id", o.ID, "error", err)
			continue
		}
		for _, a := range d.Attachments {
			out.items = append(out.items, model.NewAttachmentItem(id, a))
		}
		if len(d.Links) == 0 {
			continue
		}
		refs := make([]LinkRef, 0, len(d.Links))
		for _, l := range d.Links {
			out.items = append(out.items, model.NewLinkItem(id, l))
			refs = append(refs, LinkRef{Name: l.Name, URL: l.URL})
		}
		out.links.Orders = append(out.links.Orders, OrderLinks{OrderID: o.ID, Links: refs})
	}
	return out
}
