package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automatpos/backend/internal/config"
)

func TestLocalDiskWritesGuardAndFile(t *testing.T) {
	root := filepath.Join(t.TempDir(), "receipts")
	disk, err := NewLocal(root, "/receipts/")
	require.NoError(t, err)

	guard, err := os.ReadFile(filepath.Join(root, ".htaccess"))
	require.NoError(t, err)
	assert.Contains(t, string(guard), "Deny from all")

	path, err := disk.Put(context.Background(), "2024/AMP-2024-000042.pdf", []byte("%PDF-1.3"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "2024/AMP-2024-000042.pdf", path)
	assert.Equal(t, "/receipts/2024/AMP-2024-000042.pdf", disk.URL(path))

	content, err := os.ReadFile(filepath.Join(root, "2024", "AMP-2024-000042.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.3", string(content))
}

func TestLocalDiskKeepsKeysInsideRoot(t *testing.T) {
	root := t.TempDir()
	disk, err := NewLocal(root, "")
	require.NoError(t, err)

	path, err := disk.Put(context.Background(), "../../escape.pdf", []byte("x"), "")
	require.NoError(t, err)
	assert.Equal(t, "escape.pdf", path)

	_, err = os.Stat(filepath.Join(root, "escape.pdf"))
	assert.NoError(t, err)
}

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakePutter) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3DiskPrefixesKeys(t *testing.T) {
	client := &fakePutter{}
	disk := newS3Disk(client, "receipts", "/pos/", "http://minio:9000/receipts/")

	path, err := disk.Put(context.Background(), "2024/AMP-2024-000001.pdf", []byte("pdf"), "application/pdf")
	require.NoError(t, err)

	assert.Equal(t, "pos/2024/AMP-2024-000001.pdf", path)
	assert.Equal(t, "receipts", aws.ToString(client.input.Bucket))
	assert.Equal(t, "application/pdf", aws.ToString(client.input.ContentType))
	assert.Equal(t, []byte("pdf"), client.body)
	assert.Equal(t, "http://minio:9000/receipts/pos/2024/AMP-2024-000001.pdf", disk.URL(path))
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), config.ReceiptStorageSettings{Driver: "ftp"})
	assert.Error(t, err)
}
