// Package feed publishes an RSS feed of finished transfers from the objects
// in the results bucket.
package feed

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmorgan81/hairswap/internal/config"
	"github.com/dmorgan81/hairswap/internal/log"
	"github.com/gorilla/feeds"
	"github.com/samber/do"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const Prefix = "results/"

type S3API interface {
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type Generator struct {
	client S3API
	bucket string
	site   string
}

func New(client S3API, bucket, site string) *Generator {
	return &Generator{client: client, bucket: bucket, site: strings.TrimSuffix(site, "/")}
}

func NewS3Generator(i *do.Injector) (*Generator, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return New(do.MustInvoke[*s3.Client](i), cfg.Bucket, cfg.SiteURL), nil
}

func (g *Generator) Generate(ctx context.Context) ([]byte, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("feed")
	log.Info("generating rss feed")

	feed := feeds.Feed{
		Title:       "HairSwap",
		Description: "Recent hairstyle transfers",
		Link:        &feeds.Link{Href: g.site},
		Updated:     time.Now(),
	}

	pager := s3.NewListObjectsV2Paginator(g.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(g.bucket),
		Prefix: aws.String(Prefix),
	})

	var mu sync.Mutex
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(8)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		objs := lo.Filter(page.Contents, func(o s3types.Object, _ int) bool {
			return strings.HasSuffix(aws.ToString(o.Key), ".png")
		})

		for _, obj := range objs {
			group.Go(func() error {
				out, err := g.client.HeadObject(ctx, &s3.HeadObjectInput{
					Bucket: aws.String(g.bucket),
					Key:    obj.Key,
				})
				if err != nil {
					return err
				}

				item := g.item(aws.ToString(obj.Key), out)
				mu.Lock()
				feed.Add(item)
				mu.Unlock()
				return nil
			})
		}
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	feed.Sort(func(a, b *feeds.Item) bool {
		return a.Updated.After(b.Updated)
	})
	rss, err := feed.ToRss()
	return []byte(rss), err
}

func (g *Generator) item(key string, out *s3.HeadObjectOutput) *feeds.Item {
	meta := out.Metadata
	id := lo.Ternary(meta["id"] != "", meta["id"], strings.TrimSuffix(path.Base(key), ".png"))
	return &feeds.Item{
		Id:          id,
		Title:       fmt.Sprintf("%s hairstyle transfer (smoothness %s)", lo.Ternary(meta["style"] != "", meta["style"], "unknown"), meta["smoothness"]),
		Link:        &feeds.Link{Href: fmt.Sprintf("%s/%s%s.html", g.site, Prefix, id)},
		Description: fmt.Sprintf("%s output from a %s face and a %s reference in %s", meta["output"], meta["face"], meta["reference"], meta["duration"]),
		Updated:     aws.ToTime(out.LastModified),
	}
}
