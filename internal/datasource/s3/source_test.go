package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	objects map[string]string
	gotIn   *awss3.GetObjectInput
}

func (f *fakeClient) GetObject(ctx context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	f.gotIn = in
	body, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &awss3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestParseURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		uri         string
		bucket, key string
		wantErr     bool
	}{
		{uri: "s3://journals/dumps/2023.sql.gz", bucket: "journals", key: "dumps/2023.sql.gz"},
		{uri: "s3://journals/a.sql", bucket: "journals", key: "a.sql"},
		{uri: "s3://journals/", wantErr: true},
		{uri: "s3:///key", wantErr: true},
		{uri: "https://journals/a.sql", wantErr: true},
	}
	for _, tc := range tests {
		b, k, err := ParseURI(tc.uri)
		if tc.wantErr {
			assert.Error(t, err, tc.uri)
			continue
		}
		require.NoError(t, err, tc.uri)
		assert.Equal(t, tc.bucket, b)
		assert.Equal(t, tc.key, k)
	}
}

func TestSource_Open(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{objects: map[string]string{"journals/2023.sql": "INSERT INTO t (a) VALUES (1);"}}
	src, err := New(fc, "s3://journals/2023.sql")
	require.NoError(t, err)

	rc, err := src.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO t (a) VALUES (1);", string(body))
	assert.Equal(t, "journals", *fc.gotIn.Bucket)
}

func TestSource_OpenMissing(t *testing.T) {
	t.Parallel()

	src, err := New(&fakeClient{}, "s3://journals/nope.sql")
	require.NoError(t, err)
	_, err = src.Open(context.Background())
	assert.True(t, errors.Is(err, ErrNotFound), "err = %v", err)
}
