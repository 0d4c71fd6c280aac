package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/dmorgan81/hairswap/internal/config"
	"github.com/dmorgan81/hairswap/internal/handle"
	"github.com/dmorgan81/hairswap/internal/handler"
	"github.com/dmorgan81/hairswap/internal/inject"
	"github.com/dmorgan81/hairswap/internal/log"
	"github.com/samber/do"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.New(os.Stderr).Error("loading config", "error", err)
		os.Exit(1)
	}
	ctx := log.NewContext(context.Background(), log.NewWithOptions(os.Stderr, log.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}))
	injector := inject.Setup(ctx, cfg)

	// The same binary serves result pages through the object lambda.
	var fn any
	if os.Getenv("HANDLER") == "page" {
		fn = do.MustInvoke[*handle.PageHandler](injector).Handle
	} else {
		fn = do.MustInvoke[*handler.Handler](injector).Handle
	}
	lambda.StartWithOptions(fn, lambda.WithContext(ctx), lambda.WithEnableSIGTERM(func() {
		_ = injector.Shutdown()
	}))
}
