package install

import (
	"context"

	slogcontext "github.com/veqryn/slog-context"
	"golang.org/x/sync/errgroup"

	"github.com/mmiszy/proto/internal/tool"
)

// Setup runs every step for r and reports whether r was newly installed. Calls for the
// same tool version within this pipeline share one run.
func (p *Pipeline) Setup(ctx context.Context, r *tool.Resolved) (bool, error) {
	v, err, shared := p.group.Do(r.String(), func() (any, error) {
		return p.setup(ctx, r)
	})
	if shared {
		slogcontext.FromCtx(ctx).DebugContext(ctx, "joined running setup", "tool", r.ID(), "version", r.Version())
	}
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (p *Pipeline) setup(ctx context.Context, r *tool.Resolved) (bool, error) {
	if r.IsInstalled() {
		slogcontext.FromCtx(ctx).DebugContext(ctx, "tool already installed, continuing", "tool", r.ID(), "version", r.Version())
		return false, nil
	}

	if _, err := p.Download(ctx, r); err != nil {
		return false, err
	}
	if _, err := p.Verify(ctx, r); err != nil {
		return false, err
	}
	installed, err := p.Install(ctx, r)
	if err != nil {
		return false, err
	}
	if _, err := p.CreateShims(ctx, r); err != nil {
		return false, err
	}
	return installed, nil
}

// SetupAll sets up several tool versions concurrently. The result holds one entry per input
// in order. The first failure cancels the remaining setups.
func (p *Pipeline) SetupAll(ctx context.Context, resolved []*tool.Resolved) ([]bool, error) {
	installed := make([]bool, len(resolved))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(p.concurrency)
	for i, r := range resolved {
		eg.Go(func() error {
			ok, err := p.Setup(ctx, r)
			if err != nil {
				return err
			}
			installed[i] = ok
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return installed, nil
}
