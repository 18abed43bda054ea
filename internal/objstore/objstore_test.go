package objstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func readAll(t *testing.T, s Store, bucket, key string) string {
	t.Helper()
	rc, err := s.Get(context.Background(), bucket, key)
	if err != nil {
		t.Fatalf("Get(%s/%s): %v", bucket, key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// exerciseStore runs the same contract checks against any Store.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	if err := s.Put(ctx, "dump", "mtg_parquet/year=2024/month=12/day=08/a.parquet", strings.NewReader("12345")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, "dump", "mtg_parquet/year=2024/month=12/day=09/b.parquet", strings.NewReader("xy")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if got := readAll(t, s, "dump", "mtg_parquet/year=2024/month=12/day=08/a.parquet"); got != "12345" {
		t.Errorf("Get = %q, want 12345", got)
	}

	objs, err := s.List(ctx, "dump", "mtg_parquet/year=2024/month=12/day=08/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objs) != 1 || objs[0].Name != "a.parquet" || objs[0].Size != 5 {
		t.Errorf("List = %+v, want one a.parquet of size 5", objs)
	}

	dst := Location{Bucket: "serve", Key: "copy.parquet"}
	if err := s.Copy(ctx, Location{Bucket: "dump", Key: "mtg_parquet/year=2024/month=12/day=09/b.parquet"}, dst); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if got := readAll(t, s, "serve", "copy.parquet"); got != "xy" {
		t.Errorf("copied object = %q, want xy", got)
	}

	if err := s.Delete(ctx, "serve", "copy.parquet"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "serve", "copy.parquet"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete error = %v, want ErrNotFound", err)
	}
}

func TestFSStore(t *testing.T) {
	exerciseStore(t, NewFSStore(t.TempDir()))
}

func TestFSStoreMissing(t *testing.T) {
	s := NewFSStore(t.TempDir())
	ctx := context.Background()

	objs, err := s.List(ctx, "nobucket", "x/")
	if err != nil {
		t.Fatalf("List on missing bucket: %v", err)
	}
	if len(objs) != 0 {
		t.Errorf("List = %v, want empty", objs)
	}
	if err := s.Delete(ctx, "nobucket", "x"); err != nil {
		t.Errorf("Delete missing object: %v", err)
	}
}

func TestObjectInfoSizeMB(t *testing.T) {
	o := ObjectInfo{Size: 3 * 1024 * 1024 / 2}
	if o.SizeMB() != 1.5 {
		t.Errorf("SizeMB = %v, want 1.5", o.SizeMB())
	}
}

// ---------------------------------------------------------------------------
// S3 fake
// ---------------------------------------------------------------------------

type fakeS3 struct {
	objects map[string][]byte // "bucket/key" -> body
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string][]byte)} }

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Prefix)
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{
			Key:  aws.String(strings.TrimPrefix(k, aws.ToString(in.Bucket)+"/")),
			Size: aws.Int64(int64(len(f.objects[k]))),
		})
	}
	return out, nil
}

func (f *fakeS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.CopySource)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = body
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	exerciseStore(t, NewS3Store(newFakeS3()))
}
