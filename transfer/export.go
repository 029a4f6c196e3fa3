package transfer

import (
	"context"
	"io"

	"github.com/huykn/dataquery/hooks"
	"github.com/huykn/dataquery/types"
)

// DefaultPageSize is the page size Export reads with.
const DefaultPageSize = 20

// ExportOptions configure Export.
type ExportOptions struct {
	Resource         string
	DataProviderName string
	Filters          []types.Filter
	Sorters          []types.Sort
	Meta             types.Meta

	// PageSize defaults to DefaultPageSize.
	PageSize int

	// MaxItemCount caps the number of exported records. Reaching it
	// truncates the export. Zero means no cap.
	MaxItemCount int

	// MapData transforms each record before it is written.
	MapData MapFunc
}

// Export reads every record of a resource page by page until the reported
// total, an empty page or MaxItemCount is reached. A failed read fails the
// whole job; a failed MapData only fails its item.
func (e *Engine) Export(ctx context.Context, opts ExportOptions) (*Job, error) {
	if opts.Resource == "" {
		return nil, types.NewValidationError("resource name is required to export")
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}

	job := e.register(KindExport, opts.Resource)

	records, truncated, err := e.fetchAll(ctx, opts)
	if err != nil {
		job.start(nil)
		job.finish(err, e.now())
		e.fail(job, err)
		e.logger.Error("transfer: export aborted", "resource", opts.Resource, "job", job.ID, "error", err)
		return job, err
	}

	job.start(records)
	job.markTruncated(truncated)

	idField := e.client.Registry().Resolve(opts.Resource).IdentifierField
	for i, rec := range records {
		r := ItemResult{Index: i, Status: ItemSuccess, ID: types.IDOf(rec[idField])}
		if opts.MapData != nil {
			mapped, err := opts.MapData(rec, i)
			if err != nil {
				r.Status = ItemFailed
				r.Err = types.NewValidationError("item %d: %v", i, err)
			} else {
				job.setItem(i, mapped)
			}
		}
		job.settle(r)
	}

	s := job.finish(nil, e.now())
	e.summarize(job, s)
	e.logger.Info("transfer: export finished", "resource", opts.Resource, "job", job.ID,
		"status", job.Status(), "records", s.Succeeded, "truncated", truncated)
	return job, nil
}

func (e *Engine) fetchAll(ctx context.Context, opts ExportOptions) ([]types.Record, bool, error) {
	var out []types.Record
	for page := 1; ; page++ {
		res, err := e.client.FetchList(ctx, opts.Resource, hooks.ListOptions{
			QueryOptions: hooks.QueryOptions{DataProviderName: opts.DataProviderName},
			Filters:      opts.Filters,
			Sorters:      opts.Sorters,
			Pagination:   &types.Pagination{Current: page, PageSize: opts.PageSize},
			Meta:         opts.Meta,
		})
		if err != nil {
			return nil, false, err
		}
		out = append(out, res.Data...)

		if opts.MaxItemCount > 0 && len(out) >= opts.MaxItemCount {
			truncated := len(out) > opts.MaxItemCount || res.Total > opts.MaxItemCount
			return out[:opts.MaxItemCount], truncated, nil
		}
		if len(res.Data) == 0 || len(out) >= res.Total {
			return out, false, nil
		}
	}
}

// ExportTo exports a resource and writes the successfully mapped records
// to w.
func (e *Engine) ExportTo(ctx context.Context, w io.Writer, writer Writer, opts ExportOptions) (*Job, error) {
	job, err := e.Export(ctx, opts)
	if err != nil {
		return job, err
	}
	if writer == nil {
		writer = JSONWriter{}
	}
	return job, writer.Write(w, job.Records())
}
