package param

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type fakeSSM struct {
	values map[string]string
	pages  [][]types.Parameter
}

func (f *fakeSSM) GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	if !aws.ToBool(in.WithDecryption) {
		return nil, errors.New("expected decryption")
	}
	v, ok := f.values[aws.ToString(in.Name)]
	if !ok {
		return nil, &types.ParameterNotFound{}
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name, Value: aws.String(v)}}, nil
}

// GetParametersByPath serves pages keyed by the page index in NextToken.
func (f *fakeSSM) GetParametersByPath(ctx context.Context, in *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
	i := 0
	if in.NextToken != nil {
		i = int(aws.ToString(in.NextToken)[0] - '0')
	}
	out := &ssm.GetParametersByPathOutput{Parameters: f.pages[i]}
	if i+1 < len(f.pages) {
		out.NextToken = aws.String(string(rune('0' + i + 1)))
	}
	return out, nil
}

func param(name, value string) types.Parameter {
	return types.Parameter{Name: aws.String(name), Value: aws.String(value)}
}

func TestParameterStoreFetch(t *testing.T) {
	f := NewParameterStore(&fakeSSM{values: map[string]string{"/hairswap/remote-key": "secret"}})
	ctx := context.Background()

	v, err := f.Fetch(ctx, "/hairswap/remote-key")
	if err != nil || v != "secret" {
		t.Errorf("Fetch = %q, %v", v, err)
	}
	var notFound *types.ParameterNotFound
	if _, err := f.Fetch(ctx, "/hairswap/missing"); !errors.As(err, &notFound) {
		t.Errorf("Expected ParameterNotFound, got %v", err)
	}
}

func TestParameterStoreFetchAllPages(t *testing.T) {
	f := NewParameterStore(&fakeSSM{pages: [][]types.Parameter{
		{param("/hairswap/styles/b", "fidelity")},
		{param("/hairswap/styles/a", "realistic"), param("/hairswap/styles/b", "fidelity")},
	}})

	all, err := f.FetchAll(context.Background(), "/hairswap/styles")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0] != "realistic" || all[1] != "fidelity" {
		t.Errorf("FetchAll = %v", all)
	}
}
