// Package handle serves result pages through an S3 Object Lambda access
// point. Pages of successful transfers are rendered from the metadata stored
// on the output PNG, so a template change applies to every published result.
// Failed transfers have no PNG; their stored page is passed through as is.
package handle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmorgan81/hairswap/internal/config"
	"github.com/dmorgan81/hairswap/internal/log"
	"github.com/dmorgan81/hairswap/internal/page"
	"github.com/samber/do"
)

var urlRegexp = regexp.MustCompile(`^https://.+\.amazonaws\.com/(?P<key>.+?)\.html(?:\?.*)?$`)

type objectContext struct {
	Url   string `json:"inputS3Url"`
	Route string `json:"outputRoute"`
	Token string `json:"outputToken"`
}

type PageRequest struct {
	Id         string        `json:"xAmzRequestId"`
	GetContext objectContext `json:"getObjectContext"`
}

type ObjectLambdaAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	WriteGetObjectResponse(ctx context.Context, params *s3.WriteGetObjectResponseInput, optFns ...func(*s3.Options)) (*s3.WriteGetObjectResponseOutput, error)
}

type PageHandler struct {
	client    ObjectLambdaAPI
	http      *http.Client
	bucket    string
	templator *page.Templator
}

func NewPageHandler(i *do.Injector) (*PageHandler, error) {
	return &PageHandler{
		client:    do.MustInvoke[*s3.Client](i),
		http:      do.MustInvoke[*http.Client](i),
		bucket:    do.MustInvoke[*config.Config](i).Bucket,
		templator: do.MustInvoke[*page.Templator](i),
	}, nil
}

func (h *PageHandler) Handle(ctx context.Context, request PageRequest) error {
	log := log.FromContextOrDiscard(ctx).WithGroup("PageHandler").With("request", request.Id)
	matches := urlRegexp.FindStringSubmatch(request.GetContext.Url)
	if matches == nil {
		return fmt.Errorf("handle: %q is not a page url", request.GetContext.Url)
	}
	key := matches[urlRegexp.SubexpIndex("key")]
	log.Info("handling lambda request", "key", key)

	out, err := h.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key + ".png"),
	})
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		log.Info("no output image, passing the stored page through")
		return h.passthrough(ctx, request)
	}
	if err != nil {
		return fmt.Errorf("handle: head %s.png: %w", key, err)
	}

	html, err := h.templator.Template(ctx, page.ParamsFromMetadata(out.Metadata, path.Base(key)+".png"))
	if err != nil {
		return err
	}
	return h.respond(ctx, request, html, out)
}

func (h *PageHandler) passthrough(ctx context.Context, request PageRequest) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, request.GetContext.Url, nil)
	if err != nil {
		return err
	}
	resp, err := h.http.Do(req)
	if err != nil {
		return fmt.Errorf("handle: fetch stored page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("handle: fetch stored page: %s", resp.Status)
	}
	html, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return h.respond(ctx, request, html, &s3.HeadObjectOutput{ETag: aws.String(resp.Header.Get("ETag"))})
}

func (h *PageHandler) respond(ctx context.Context, request PageRequest, html []byte, out *s3.HeadObjectOutput) error {
	_, err := h.client.WriteGetObjectResponse(ctx, &s3.WriteGetObjectResponseInput{
		RequestRoute: aws.String(request.GetContext.Route),
		RequestToken: aws.String(request.GetContext.Token),

		Body:          bytes.NewReader(html),
		ContentLength: int64(len(html)),
		ContentType:   aws.String("text/html"),
		ETag:          out.ETag,
		Expires:       out.Expires,
		LastModified:  out.LastModified,
		Metadata:      out.Metadata,
		StatusCode:    http.StatusOK,
	})
	return err
}
