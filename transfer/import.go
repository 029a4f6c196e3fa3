package transfer

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/huykn/dataquery/hooks"
	"github.com/huykn/dataquery/notify"
	"github.com/huykn/dataquery/types"
)

// ImportOptions configure Import.
type ImportOptions struct {
	Resource         string
	DataProviderName string
	Meta             types.Meta

	// Parser turns the payload into raw records. Defaults to JSONParser.
	Parser Parser

	// MapData transforms each raw record before it is written.
	MapData MapFunc

	// Concurrency bounds the writes in flight. Defaults to 1.
	Concurrency int

	// RateLimit bounds writes per second. Zero means unlimited.
	RateLimit rate.Limit
	// Burst defaults to 1.
	Burst int
}

// Import parses payload and writes every record. A record holding an
// identifier is updated, any other record is created. Failed records are
// reported per index and never undo records already written. The affected
// resource is invalidated once, after the last record.
func (e *Engine) Import(ctx context.Context, payload io.Reader, opts ImportOptions) (*Job, error) {
	if opts.Resource == "" {
		return nil, types.NewValidationError("resource name is required to import")
	}
	if opts.Parser == nil {
		opts.Parser = JSONParser{}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	job := e.register(KindImport, opts.Resource)

	items, err := opts.Parser.Parse(payload)
	if err != nil {
		job.start(nil)
		job.finish(err, e.now())
		e.fail(job, err)
		e.logger.Error("transfer: import aborted", "resource", opts.Resource, "job", job.ID, "error", err)
		return job, err
	}
	job.start(items)

	mutationOpts := hooks.MutationOptions{
		DataProviderName: opts.DataProviderName,
		Silent:           true,
		SkipInvalidation: true,
		Sink:             notify.NoOp{},
		Meta:             opts.Meta,
	}
	create, err := e.client.UseCreate(opts.Resource, mutationOpts)
	if err != nil {
		job.finish(err, e.now())
		e.fail(job, err)
		return job, err
	}
	update, err := e.client.UseUpdate(opts.Resource, mutationOpts)
	if err != nil {
		job.finish(err, e.now())
		e.fail(job, err)
		return job, err
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(opts.RateLimit, burst)
	}

	idField := e.client.Registry().Resolve(opts.Resource).IdentifierField

	var g errgroup.Group
	g.SetLimit(opts.Concurrency)
	for i, raw := range items {
		i, raw := i, raw
		g.Go(func() error {
			r := e.importItem(ctx, job, i, raw, opts, limiter, idField, create, update)
			e.progress(job, job.settle(r))
			return nil
		})
	}
	_ = g.Wait()

	s := job.finish(nil, e.now())
	if s.Succeeded > 0 {
		err := e.client.UseInvalidate(ctx, hooks.InvalidateParams{
			Resource:         opts.Resource,
			DataProviderName: opts.DataProviderName,
			Invalidates:      []hooks.Target{hooks.TargetResourceAll},
		})
		if err != nil {
			e.logger.Error("transfer: invalidation after import failed", "resource", opts.Resource, "error", err)
		}
	}
	e.summarize(job, s)
	e.logger.Info("transfer: import finished", "resource", opts.Resource, "job", job.ID,
		"status", job.Status(), "succeeded", s.Succeeded, "failed", s.Failed)
	return job, nil
}

func (e *Engine) importItem(
	ctx context.Context,
	job *Job,
	i int,
	raw types.Record,
	opts ImportOptions,
	limiter *rate.Limiter,
	idField string,
	create *hooks.Mutation[types.Record, types.Record],
	update *hooks.Mutation[hooks.UpdateVariables, types.Record],
) ItemResult {
	res := ItemResult{Index: i, Status: ItemFailed}

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	rec := raw
	if opts.MapData != nil {
		mapped, err := opts.MapData(raw, i)
		if err != nil {
			res.Err = types.NewValidationError("item %d: %v", i, err)
			return res
		}
		rec = mapped
		job.setItem(i, rec)
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			res.Err = err
			return res
		}
	}

	id := types.IDOf(rec[idField])
	var err error
	if id != "" {
		res.Operation = types.OperationUpdate
		res.ID = id
		_, err = update.Mutate(ctx, hooks.UpdateVariables{ID: id, Values: rec})
	} else {
		res.Operation = types.OperationCreate
		var created types.Record
		created, err = create.Mutate(ctx, rec)
		res.ID = types.IDOf(created[idField])
	}
	if err != nil {
		res.Err = err
		return res
	}

	res.Status = ItemSuccess
	return res
}
