// Package inject wires the application. Storage, parameters and the
// published site go to AWS when a bucket is configured and to the local
// filesystem otherwise.
package inject

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/dmorgan81/hairswap/internal/catalog"
	"github.com/dmorgan81/hairswap/internal/config"
	"github.com/dmorgan81/hairswap/internal/feed"
	"github.com/dmorgan81/hairswap/internal/handle"
	"github.com/dmorgan81/hairswap/internal/handler"
	"github.com/dmorgan81/hairswap/internal/history"
	"github.com/dmorgan81/hairswap/internal/log"
	"github.com/dmorgan81/hairswap/internal/metrics"
	"github.com/dmorgan81/hairswap/internal/model"
	"github.com/dmorgan81/hairswap/internal/model/barbershop"
	"github.com/dmorgan81/hairswap/internal/model/remote"
	"github.com/dmorgan81/hairswap/internal/model/stub"
	"github.com/dmorgan81/hairswap/internal/page"
	"github.com/dmorgan81/hairswap/internal/param"
	"github.com/dmorgan81/hairswap/internal/publish"
	"github.com/dmorgan81/hairswap/internal/server"
	"github.com/dmorgan81/hairswap/internal/store"
	"github.com/dmorgan81/hairswap/internal/transfer"
	"github.com/samber/do"
)

func Setup(ctx context.Context, cfg *config.Config) *do.Injector {
	log := log.FromContextOrDiscard(ctx)

	injector := do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			log.Debug(fmt.Sprintf(format, args...))
		},
	})
	do.ProvideValue[*config.Config](injector, cfg)
	do.Provide[aws.Config](injector, func(i *do.Injector) (aws.Config, error) {
		return awsconfig.LoadDefaultConfig(ctx)
	})
	do.Provide[*ssm.Client](injector, func(i *do.Injector) (*ssm.Client, error) {
		return ssm.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*s3.Client](injector, func(i *do.Injector) (*s3.Client, error) {
		return s3.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*cloudfront.Client](injector, func(i *do.Injector) (*cloudfront.Client, error) {
		return cloudfront.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.ProvideValue[*http.Client](injector, http.DefaultClient)

	remoteStorage := cfg.Bucket != ""
	do.Provide[param.Fetcher](injector, pick(remoteStorage, param.NewParameterStoreFetcher, param.NewEnvFetcher))
	do.Provide[catalog.Catalog](injector, pick(remoteStorage, catalog.NewS3Catalog, catalog.NewFSCatalog))
	do.Provide[store.Fetcher](injector, pick(remoteStorage, store.NewS3Fetcher, store.NewFileFetcher))
	do.Provide[store.Uploader](injector, pick(remoteStorage, store.NewS3Uploader, store.NewFileUploader))
	do.Provide[store.Invalidator](injector, pick(cfg.Distribution != "", store.NewCloudFrontInvalidator, store.NewNopInvalidator))

	switch cfg.Model {
	case config.BackendRemote:
		do.Provide[model.Capability](injector, remote.NewModel)
	case config.BackendStub:
		do.Provide[model.Capability](injector, stub.NewCapability)
	default:
		do.Provide[model.Capability](injector, barbershop.NewModel)
	}
	do.Provide[*model.Handle](injector, func(i *do.Injector) (*model.Handle, error) {
		return model.NewHandle(do.MustInvoke[model.Capability](i)), nil
	})
	do.Provide[*model.Gate](injector, func(i *do.Injector) (*model.Gate, error) {
		return model.NewGate(cfg.MaxConcurrentTransfers), nil
	})

	do.Provide[*metrics.Metrics](injector, metrics.NewMetrics)
	do.Provide[*history.Store](injector, history.NewStore)
	do.Provide[*page.Templator](injector, page.NewTemplator)
	do.Provide[*feed.Generator](injector, feed.NewS3Generator)
	do.Provide[*publish.Publisher](injector, publish.NewPublisher)
	do.Provide[*transfer.Orchestrator](injector, transfer.NewOrchestrator)

	do.Provide[*handler.Handler](injector, handler.NewHandler)
	do.Provide[*handle.PageHandler](injector, handle.NewPageHandler)
	do.Provide[*server.Server](injector, server.NewServer)

	return injector
}

func pick[T any](cond bool, a, b do.Provider[T]) do.Provider[T] {
	if cond {
		return a
	}
	return b
}
