package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmorgan81/hairswap/internal/config"
	"github.com/go-logr/logr"
	"github.com/samber/do"
	"github.com/samber/lo"
)

const (
	hairstylesPrefix = "hairstyles/"
	examplesPrefix   = "examples/"
)

type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 is a catalog stored in a bucket: hairstyles/<category>/<file> and
// examples/<file>.
type S3 struct {
	client S3API
	bucket string
}

func NewS3(client S3API, bucket string) *S3 {
	return &S3{client: client, bucket: bucket}
}

func NewS3Catalog(i *do.Injector) (Catalog, error) {
	return NewS3(do.MustInvoke[*s3.Client](i), do.MustInvoke[*config.Config](i).Bucket), nil
}

func (c *S3) Categories(ctx context.Context) ([]string, error) {
	logr.FromContextOrDiscard(ctx).WithName("catalog").Info("listing categories", "bucket", c.bucket)

	var cats []string
	pager := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(c.bucket),
		Prefix:    aws.String(hairstylesPrefix),
		Delimiter: aws.String("/"),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		cats = append(cats, lo.Map(page.CommonPrefixes, func(p s3types.CommonPrefix, _ int) string {
			return strings.TrimSuffix(strings.TrimPrefix(aws.ToString(p.Prefix), hairstylesPrefix), "/")
		})...)
	}
	return cats, nil
}

func (c *S3) keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	pager := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		keys = append(keys, lo.FilterMap(page.Contents, func(o s3types.Object, _ int) (string, bool) {
			key := aws.ToString(o.Key)
			rest := strings.TrimPrefix(key, prefix)
			return key, rest != "" && !strings.Contains(rest, "/")
		})...)
	}
	return keys, nil
}

func (c *S3) Items(ctx context.Context, category string) ([]Item, error) {
	if !validCategory(category) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	keys, err := c.keys(ctx, hairstylesPrefix+category+"/")
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return lo.FilterMap(keys, func(key string, _ int) (Item, bool) {
		return Item{Category: category, Name: stem(path.Base(key)), Key: key}, isImage(key)
	}), nil
}

func (c *S3) Open(ctx context.Context, item Item) (io.ReadCloser, error) {
	if !strings.HasPrefix(item.Key, hairstylesPrefix) && !strings.HasPrefix(item.Key, examplesPrefix) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, item.Key)
	}
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(item.Key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, item.Key)
		}
		return nil, err
	}
	return out.Body, nil
}

func (c *S3) Examples(ctx context.Context) ([]Pair, error) {
	keys, err := c.keys(ctx, examplesPrefix)
	if err != nil {
		return nil, err
	}
	names := lo.Map(keys, func(k string, _ int) string { return path.Base(k) })
	return lo.Map(pairExamples(names), func(p [2]string, _ int) Pair {
		return Pair{
			Name: stem(p[0]),
			Face: Item{Category: "examples", Name: stem(p[0]), Key: examplesPrefix + p[0]},
			Hair: Item{Category: "examples", Name: stem(p[1]), Key: examplesPrefix + p[1]},
		}
	}), nil
}
