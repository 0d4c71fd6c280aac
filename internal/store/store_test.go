package store

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestFileUploaderAndFetcher(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	u := &FileUploader{Root: root}

	if err := u.Upload(ctx, UploadParams{Name: "results/abc.png", Data: []byte("png")}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(root, "results", "abc.png"))
	if err != nil || string(data) != "png" {
		t.Fatalf("ReadFile = %q, %v", data, err)
	}

	// keys cannot climb out of the root
	if err := u.Upload(ctx, UploadParams{Name: "../../escape.png", Data: []byte("x")}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "escape.png")); err != nil {
		t.Errorf("Expected the upload to land inside the root: %v", err)
	}

	f := &FileFetcher{Root: root}
	r, err := f.Fetch(ctx, "results/abc.png")
	if err != nil {
		t.Fatal(err)
	}
	got, _ := io.ReadAll(r)
	r.Close()
	if string(got) != "png" {
		t.Errorf("Expected %q, got %q", "png", got)
	}
	if _, err := f.Fetch(ctx, "results/missing.png"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := f.Fetch(ctx, ""); err == nil {
		t.Error("Expected an error for an empty key")
	}
}

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	objects map[string]string
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestS3UploaderAndFetcher(t *testing.T) {
	client := &fakeS3{objects: map[string]string{"uploads/face.png": "face"}}
	ctx := context.Background()

	u := &S3Uploader{Client: client, Bucket: "results"}
	err := u.Upload(ctx, UploadParams{
		Name:        "results/abc.html",
		Data:        []byte("<html>"),
		ContentType: "text/html",
		Metadata:    map[string]string{"id": "abc"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(client.puts) != 1 {
		t.Fatalf("Expected 1 put, got %d", len(client.puts))
	}
	put := client.puts[0]
	if aws.ToString(put.Bucket) != "results" || aws.ToString(put.Key) != "results/abc.html" || put.Metadata["id"] != "abc" {
		t.Errorf("unexpected put %+v", put)
	}

	f := &S3Fetcher{Client: client, Bucket: "inputs"}
	r, err := f.Fetch(ctx, "uploads/face.png")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(r)
	if string(data) != "face" {
		t.Errorf("unexpected body %q", data)
	}
	if _, err := f.Fetch(ctx, "uploads/none.png"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

type fakeCloudFront struct {
	in *cloudfront.CreateInvalidationInput
}

func (f *fakeCloudFront) CreateInvalidation(ctx context.Context, in *cloudfront.CreateInvalidationInput, _ ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error) {
	f.in = in
	return &cloudfront.CreateInvalidationOutput{}, nil
}

func TestCloudFrontInvalidator(t *testing.T) {
	client := &fakeCloudFront{}
	inv := &CloudFrontInvalidator{Client: client, Distribution: "E123"}
	if err := inv.Invalidate(context.Background(), []string{"/a.png", "/a.html", "/a.png"}); err != nil {
		t.Fatal(err)
	}
	paths := client.in.InvalidationBatch.Paths
	if aws.ToString(client.in.DistributionId) != "E123" || aws.ToInt32(paths.Quantity) != 2 || len(paths.Items) != 2 {
		t.Errorf("unexpected invalidation %+v", paths)
	}

	if err := (NopInvalidator{}).Invalidate(context.Background(), []string{"/x"}); err != nil {
		t.Errorf("NopInvalidator: %v", err)
	}
}
