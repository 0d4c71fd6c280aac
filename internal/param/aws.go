package param

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/dmorgan81/hairswap/internal/log"
	"github.com/samber/do"
	"github.com/samber/lo"
)

type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	ssm.GetParametersByPathAPIClient
}

// ParameterStoreFetcher reads decrypted parameters from SSM. FetchAll walks
// every page under the path, ordered by parameter name.
type ParameterStoreFetcher struct {
	client SSMAPI
}

func NewParameterStore(client SSMAPI) *ParameterStoreFetcher {
	return &ParameterStoreFetcher{client: client}
}

func NewParameterStoreFetcher(i *do.Injector) (Fetcher, error) {
	return NewParameterStore(do.MustInvoke[*ssm.Client](i)), nil
}

func (f *ParameterStoreFetcher) Fetch(ctx context.Context, path string) (string, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("parameter store").With("path", path)
	log.Info("fetching single parameter")

	out, err := f.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("param: get %s: %w", path, err)
	}
	if out.Parameter == nil {
		return "", fmt.Errorf("param: %s has no value", path)
	}
	return aws.ToString(out.Parameter.Value), nil
}

func (f *ParameterStoreFetcher) FetchAll(ctx context.Context, path string) ([]string, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("parameter store").With("path", path)
	log.Info("fetching all parameters")

	var params []types.Parameter
	paginator := ssm.NewGetParametersByPathPaginator(f.client, &ssm.GetParametersByPathInput{
		Path:           aws.String(path),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("param: list %s: %w", path, err)
		}
		params = append(params, page.Parameters...)
	}
	log.Debug("fetched parameters", "count", len(params))

	params = lo.UniqBy(params, func(p types.Parameter) string { return aws.ToString(p.Name) })
	slices.SortFunc(params, func(a, b types.Parameter) int {
		return strings.Compare(aws.ToString(a.Name), aws.ToString(b.Name))
	})
	return lo.Map(params, func(p types.Parameter, _ int) string {
		return aws.ToString(p.Value)
	}), nil
}
