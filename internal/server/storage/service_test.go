package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetpipe/internal/config"
	"assetpipe/internal/server/storage"
	"assetpipe/internal/server/storage/storagetest"
)

func TestNewService_RejectsUnknownProvider(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Storage: config.Storage{Provider: "qiniu"}}
	_, err := storage.NewService(context.Background(), cfg)
	assert.ErrorIs(t, err, storage.ErrUnknownProvider)
}

func TestNewService_RejectsUnknownStrategy(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Storage: config.Storage{Provider: "minio", UploadStrategy: "carrier-pigeon"}}
	_, err := storage.NewService(context.Background(), cfg)
	assert.ErrorIs(t, err, storage.ErrUnsupportedStrategy)
}

func TestNewService_FormPostOnlyOnMinio(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Storage: config.Storage{Provider: "oss", UploadStrategy: "form_post"},
		OSS:     config.OSS{Region: "cn-hangzhou", Bucket: "studio"},
	}
	_, err := storage.NewService(context.Background(), cfg)
	assert.ErrorIs(t, err, storage.ErrUnsupportedStrategy)
}

func TestService_ForwardsToProvider(t *testing.T) {
	t.Parallel()

	mem := storagetest.NewMemory()
	svc := storage.NewServiceWithProvider(mem)
	ctx := context.Background()

	cred, err := svc.GenerateUploadToken(ctx, "assets/2026/10/x-a.jpg", time.Hour, storage.UploadOptions{ContentType: "image/jpeg"})
	require.NoError(t, err)
	assert.Equal(t, "assets/2026/10/x-a.jpg", cred.ObjectKey)
	assert.EqualValues(t, 3600, cred.ExpiresIn)
	assert.Equal(t, storage.StrategyPresignedPut, cred.Strategy)

	ok, err := svc.FileExists(ctx, cred.ObjectKey)
	require.NoError(t, err)
	assert.False(t, ok)

	mem.PutObject(cred.ObjectKey, 10)
	ok, err = svc.FileExists(ctx, cred.ObjectKey)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, svc.DeleteFiles(ctx, []string{cred.ObjectKey}))
	ok, err = svc.FileExists(ctx, cred.ObjectKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_ValidatesBeforeCallingProvider(t *testing.T) {
	t.Parallel()

	mem := storagetest.NewMemory()
	svc := storage.NewServiceWithProvider(mem)
	ctx := context.Background()

	_, err := svc.GenerateUploadToken(ctx, " ", time.Hour, storage.UploadOptions{})
	assert.ErrorIs(t, err, storage.ErrObjectKeyRequired)
	_, err = svc.SignUploadPart(ctx, "k", "", 1, time.Minute)
	assert.ErrorIs(t, err, storage.ErrUploadIDRequired)
	err = svc.AbortMultipartUpload(ctx, "", "u")
	assert.ErrorIs(t, err, storage.ErrObjectKeyRequired)

	assert.Zero(t, mem.TotalCalls())
}

func TestParseStrategy(t *testing.T) {
	t.Parallel()

	s, err := storage.ParseStrategy(" Form_Post ")
	require.NoError(t, err)
	assert.Equal(t, storage.StrategyFormPost, s)

	_, err = storage.ParseStrategy("qiniu-token")
	assert.ErrorIs(t, err, storage.ErrUnsupportedStrategy)
}
