// Package transfer runs one hairstyle transfer request end to end:
// validation, preprocessing, model setup, the bounded model call and
// optional enhancement. Every outcome, including failures, is returned as a
// Result; Run never panics.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmorgan81/hairswap/internal/asset"
	"github.com/dmorgan81/hairswap/internal/catalog"
	"github.com/dmorgan81/hairswap/internal/config"
	"github.com/dmorgan81/hairswap/internal/log"
	"github.com/dmorgan81/hairswap/internal/metrics"
	"github.com/dmorgan81/hairswap/internal/model"
	"github.com/dmorgan81/hairswap/internal/preprocess"
	"github.com/dmorgan81/hairswap/internal/validate"
	"github.com/google/uuid"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

const DefaultProcessingTimeout = 300 * time.Second

var errNoData = errors.New("no image data")

type Options struct {
	ProcessingTimeout time.Duration
	// QueueTimeout bounds the wait for a free model slot. Zero waits as long
	// as the request context allows.
	QueueTimeout time.Duration
	Preprocess   preprocess.Options
	Enhance      preprocess.Factors
}

func DefaultOptions() Options {
	return Options{
		ProcessingTimeout: DefaultProcessingTimeout,
		Preprocess:        preprocess.DefaultOptions(),
		Enhance:           preprocess.DefaultFactors(),
	}
}

type Deps struct {
	Validator *validate.Validator
	Handle    *model.Handle
	Gate      *model.Gate
	Catalog   catalog.Catalog  // optional
	Metrics   *metrics.Metrics // optional
}

type Orchestrator struct {
	validator *validate.Validator
	handle    *model.Handle
	gate      *model.Gate
	catalog   catalog.Catalog
	metrics   *metrics.Metrics
	opts      Options
}

func New(d Deps, opts Options) *Orchestrator {
	if opts.ProcessingTimeout <= 0 {
		opts.ProcessingTimeout = DefaultProcessingTimeout
	}
	if opts.Preprocess.Resolution <= 0 {
		opts.Preprocess.Resolution = preprocess.DefaultResolution
	}
	if d.Validator == nil {
		d.Validator = validate.New(validate.DefaultLimits())
	}
	if d.Gate == nil {
		d.Gate = model.NewGate(1)
	}
	return &Orchestrator{
		validator: d.Validator,
		handle:    d.Handle,
		gate:      d.Gate,
		catalog:   d.Catalog,
		metrics:   d.Metrics,
		opts:      opts,
	}
}

func NewOrchestrator(i *do.Injector) (*Orchestrator, error) {
	cfg := do.MustInvoke[*config.Config](i)
	cat, _ := do.Invoke[catalog.Catalog](i)
	m, _ := do.Invoke[*metrics.Metrics](i)
	return New(Deps{
		Validator: validate.New(validate.Limits{MaxFileSize: cfg.MaxFileSize, MinDimension: cfg.MinDimension}),
		Handle:    do.MustInvoke[*model.Handle](i),
		Gate:      do.MustInvoke[*model.Gate](i),
		Catalog:   cat,
		Metrics:   m,
	}, Options{
		ProcessingTimeout: cfg.ProcessingTimeout,
		QueueTimeout:      cfg.QueueTimeout,
		Preprocess:        preprocess.Options{Resolution: cfg.Resolution, MaxAspect: cfg.MaxAspect},
		Enhance:           cfg.Enhance,
	}), nil
}

func (o *Orchestrator) Handle() *model.Handle { return o.handle }

func (o *Orchestrator) Gate() *model.Gate { return o.gate }

func (o *Orchestrator) Options() Options { return o.opts }

// Run executes req. The returned Result always carries a non-empty log.
func (o *Orchestrator) Run(ctx context.Context, req Request) (res Result) {
	res.ID = uuid.NewString()
	res.Stats.Style, res.Stats.Smoothness = req.Style, req.Smoothness
	log := log.FromContextOrDiscard(ctx).WithGroup("transfer").With("id", res.ID)

	defer func() {
		if r := recover(); r != nil {
			res.Output = nil
			res.fail("internal", model.NewError(model.UnknownFailure, fmt.Sprintf("internal error: %v", r), nil))
		}
		if res.Log.Len() == 0 {
			res.Log.Add("internal", "request finished without output")
		}
		o.metrics.Transfer(res.Reason())
		log.Info("transfer finished", "outcome", res.Reason(), "duration", res.Stats.Duration.String())
	}()

	log.Info("transfer started", "style", req.Style, "smoothness", req.Smoothness, "enhance", req.Enhance)

	face, reference, ok := o.validate(&res, req)
	if !ok {
		return res
	}

	face, reference, ok = o.preprocess(ctx, &res, face, reference)
	if !ok {
		return res
	}

	if err := o.handle.Setup(ctx); err != nil {
		o.metrics.Setup(false)
		res.fail("setup", err)
		return res
	}
	res.Log.Add("setup", "model %s ready", o.handle.Info().Name)

	out, ok := o.invoke(ctx, &res, face, reference, model.Params{Style: req.Style, Smoothness: req.Smoothness})
	if !ok {
		return res
	}

	if req.Enhance {
		out = preprocess.Enhance(out, o.opts.Enhance)
		res.Stats.Enhanced = true
		f := o.opts.Enhance
		res.Log.Add("enhance", "brightness %.2f, contrast %.2f, sharpness %.2f, saturation %.2f", f.Brightness, f.Contrast, f.Sharpness, f.Saturation)
	}

	res.Output = out
	res.Stats.Output = out.Dimensions()
	res.Log.Add("done", "Transfer complete: %s output in %s", res.Stats.Output, res.Stats.Duration.Round(time.Millisecond))
	return res
}

func (o *Orchestrator) validate(res *Result, req Request) (*asset.Asset, *asset.Asset, bool) {
	face := o.decode(req.Face)
	reference := o.decode(req.Reference)
	outcome := o.validator.Check(validate.Subject{
		Face:       face,
		Reference:  reference,
		Style:      req.Style,
		Smoothness: req.Smoothness,
	})
	if !outcome.Valid {
		o.metrics.Rejected(outcome.Reason.Kind.String())
		res.Err = outcome.Reason
		res.Log.Add("validate", "Validation failed: %s", outcome.Reason)
		for _, w := range outcome.Warnings {
			res.Log.Add("validate", "Also invalid: %s", w)
		}
		return nil, nil, false
	}

	res.Stats.Face = face.Asset.Dimensions()
	res.Stats.Reference = reference.Asset.Dimensions()
	res.Log.Add("validate", "Inputs valid: face %s %s, reference %s %s, style %s, smoothness %d",
		res.Stats.Face, face.Asset.Mode(), res.Stats.Reference, reference.Asset.Mode(), req.Style, req.Smoothness)
	return face.Asset, reference.Asset, true
}

// decode skips files that are already too large to be accepted, so that an
// oversized upload is never expanded into pixels.
func (o *Orchestrator) decode(in Input) validate.Input {
	if in.Asset != nil {
		return validate.Input{File: in.Asset.File(), Asset: in.Asset}
	}
	if len(in.Data) == 0 {
		return validate.Input{DecodeErr: errNoData}
	}
	vi := validate.Input{File: asset.File{
		Name: in.Name,
		Size: int64(len(in.Data)),
		Head: in.Data[:min(len(in.Data), 512)],
	}}
	if vi.File.Size > o.validator.Limits().MaxFileSize {
		return vi
	}
	vi.Asset, vi.DecodeErr = asset.Decode(in.Name, in.Data)
	return vi
}

func (o *Orchestrator) preprocess(ctx context.Context, res *Result, face, reference *asset.Asset) (*asset.Asset, *asset.Asset, bool) {
	var (
		faceOut, refOut     *asset.Asset
		faceSteps, refSteps []preprocess.Step
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		faceOut, faceSteps, err = preprocess.Prepare(face, o.opts.Preprocess)
		return wrapRole("face", err)
	})
	g.Go(func() (err error) {
		refOut, refSteps, err = preprocess.Prepare(reference, o.opts.Preprocess)
		return wrapRole("reference", err)
	})
	err := g.Wait()

	for _, s := range faceSteps {
		res.Log.Add("preprocess", "face %s", s)
	}
	for _, s := range refSteps {
		res.Log.Add("preprocess", "reference %s", s)
	}
	if err != nil {
		res.fail("preprocess", err)
		return nil, nil, false
	}
	return faceOut, refOut, true
}

type roleError struct {
	role string
	err  error
}

func (e *roleError) Error() string { return e.role + ": " + e.err.Error() }
func (e *roleError) Unwrap() error { return e.err }

func wrapRole(role string, err error) error {
	if err == nil {
		return nil
	}
	return &roleError{role: role, err: err}
}

// invoke waits for a model slot and runs the transfer under the processing
// deadline. The call runs in its own goroutine which keeps the slot until the
// capability actually returns; when the deadline passes first the request
// stops waiting and whatever the call produces later is dropped.
func (o *Orchestrator) invoke(ctx context.Context, res *Result, face, reference *asset.Asset, p model.Params) (*asset.Asset, bool) {
	qctx, qcancel := ctx, context.CancelFunc(func() {})
	if o.opts.QueueTimeout > 0 {
		qctx, qcancel = context.WithTimeout(ctx, o.opts.QueueTimeout)
	}
	queued := time.Now()
	release, err := o.gate.Acquire(qctx)
	qcancel()
	o.metrics.QueueWait(time.Since(queued))
	if err != nil {
		res.fail("queue", model.NewError(model.ProcessingTimeout, "no model slot became free", err))
		return nil, false
	}
	if wait := time.Since(queued); wait > time.Millisecond {
		res.Log.Add("queue", "waited %s for a model slot", wait.Round(time.Millisecond))
	}

	type outcome struct {
		out *asset.Asset
		err error
	}
	tctx, cancel := context.WithTimeout(ctx, o.opts.ProcessingTimeout)
	defer cancel()
	done := make(chan outcome, 1)

	res.Log.Add("transfer", "Calling model (style %s, smoothness %d, deadline %s)", p.Style, p.Smoothness, o.opts.ProcessingTimeout)
	start := time.Now()
	go func() {
		defer release()
		defer o.metrics.Running()()
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: model.NewError(model.UnknownFailure, fmt.Sprintf("model panicked: %v", r), nil)}
			}
		}()
		out, err := o.handle.Transfer(tctx, face, reference, p)
		done <- outcome{out, err}
	}()

	var r outcome
	select {
	case r = <-done:
	case <-tctx.Done():
		r.err = model.NewError(model.ProcessingTimeout, o.timeoutMessage(ctx), tctx.Err())
	}
	res.Stats.Duration = max(time.Since(start), time.Nanosecond)
	o.metrics.Duration(res.Stats.Duration)

	switch {
	case r.err != nil && tctx.Err() != nil && !errors.Is(r.err, model.ErrProcessingTimeout):
		// the capability gave up because of our deadline
		r.err = model.NewError(model.ProcessingTimeout, o.timeoutMessage(ctx), r.err)
	case r.err == nil && r.out == nil:
		r.err = model.NewError(model.UnknownFailure, "model returned no image", nil)
	}
	if r.err != nil {
		res.fail("transfer", r.err)
		return nil, false
	}
	res.Log.Add("transfer", "Model returned %s in %s", r.out.Dimensions(), res.Stats.Duration.Round(time.Millisecond))
	return r.out, true
}

func (o *Orchestrator) timeoutMessage(ctx context.Context) string {
	if ctx.Err() != nil {
		return "request cancelled while the model was running"
	}
	return fmt.Sprintf("model did not finish within %s", o.opts.ProcessingTimeout)
}

// fail records err as the reason the request ended, with a user-facing line
// followed by the full error chain.
func (r *Result) fail(stage string, err error) {
	r.Output = nil
	r.Err = err
	r.Log.Add(stage, "%s", describe(err))
	r.Log.Add(stage, "%s: %v", reasonOf(err), err)
}

func describe(err error) string {
	var initErr *model.InitializationError
	if errors.As(err, &initErr) {
		return fmt.Sprintf("Model initialization failed: %v", initErr.Err)
	}
	var verr *validate.Error
	if errors.As(err, &verr) {
		return fmt.Sprintf("Preprocessing failed: %s", verr.Msg)
	}
	e := model.AsError(err)
	detail := e.Msg
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}
	switch e.Kind {
	case model.AlignmentFailure:
		return "Face alignment failed: " + detail
	case model.NotInitialized:
		return "Model is not initialized: " + detail
	case model.ProcessingTimeout:
		return "Processing timed out: " + detail
	case model.ResourceExhausted:
		return "Model ran out of memory or compute: " + detail
	default:
		return "Transfer failed: " + detail
	}
}

func reasonOf(err error) string {
	if err == nil {
		return "ok"
	}
	var initErr *model.InitializationError
	if errors.As(err, &initErr) {
		return "InitializationError"
	}
	var verr *validate.Error
	if errors.As(err, &verr) {
		return verr.Kind.String()
	}
	return model.AsError(err).Kind.String()
}

// Examples lists the example pairs of the catalog.
func (o *Orchestrator) Examples(ctx context.Context) ([]catalog.Pair, error) {
	if o.catalog == nil {
		return nil, nil
	}
	return o.catalog.Examples(ctx)
}

// LoadExample reads both images of an example pair as request inputs.
func (o *Orchestrator) LoadExample(ctx context.Context, pair catalog.Pair) (face, reference Input, err error) {
	if face, err = o.Load(ctx, pair.Face); err != nil {
		return Input{}, Input{}, err
	}
	if reference, err = o.Load(ctx, pair.Hair); err != nil {
		return Input{}, Input{}, err
	}
	return face, reference, nil
}

// Load reads a catalog item. At most one byte more than the file size limit
// is read so that oversized files still fail validation.
func (o *Orchestrator) Load(ctx context.Context, item catalog.Item) (Input, error) {
	if o.catalog == nil {
		return Input{}, errors.New("transfer: no catalog configured")
	}
	r, err := o.catalog.Open(ctx, item)
	if err != nil {
		return Input{}, err
	}
	defer r.Close()
	data, err := io.ReadAll(io.LimitReader(r, o.validator.Limits().MaxFileSize+1))
	if err != nil {
		return Input{}, fmt.Errorf("transfer: read %s: %w", item.Key, err)
	}
	return FileInput(item.Key, data), nil
}
