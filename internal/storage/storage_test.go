package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govai/console/internal/domain"
)

func newLocal(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(LocalConfig{
		BasePath: t.TempDir(),
		BaseURL:  "http://localhost:8080/files/",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func TestFileKey(t *testing.T) {
	key := FileKey("org_1", "Report.PDF")
	assert.True(t, strings.HasPrefix(key, "organizations/org_1/files/"))
	assert.True(t, strings.HasSuffix(key, ".pdf"))
	assert.NotEqual(t, key, FileKey("org_1", "Report.PDF"))
}

func TestBytesToMB(t *testing.T) {
	assert.Equal(t, 1.0, BytesToMB(BytesPerMB))
	assert.Equal(t, 0.5, BytesToMB(BytesPerMB/2))
}

func TestLocalStorage_PutGetDelete(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()
	key := "organizations/org_1/files/a.txt"

	info, err := s.Put(ctx, key, strings.NewReader("hello world"), PutOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(11), info.Size)
	assert.Equal(t, "text/plain; charset=utf-8", info.ContentType)

	rc, got, err := s.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, int64(11), got.Size)

	_, err = s.Put(ctx, key, strings.NewReader("again"), PutOptions{})
	assert.True(t, errors.Is(err, ErrKeyExists))

	url, err := s.URL(ctx, key, 0)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/files/"+key, url)

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))

	exists, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	_, _, err = s.Get(ctx, key)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalStorage_MaxSize(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()
	key := "organizations/org_1/files/big.bin"

	_, err := s.Put(ctx, key, bytes.NewReader(make([]byte, 100)), PutOptions{MaxSize: 99})
	assert.True(t, errors.Is(err, ErrTooLarge))

	exists, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists, "oversized upload must not be left behind")

	_, err = s.Put(ctx, key, bytes.NewReader(make([]byte, 99)), PutOptions{MaxSize: 99})
	assert.NoError(t, err)
}

func TestLocalStorage_Usage(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	for i, size := range []int{10, 20, 30} {
		_, err := s.Put(ctx, FileKey("org_1", "f.bin"), bytes.NewReader(make([]byte, size)), PutOptions{})
		require.NoError(t, err, "put %d", i)
	}
	_, err := s.Put(ctx, FileKey("org_2", "f.bin"), bytes.NewReader(make([]byte, 1000)), PutOptions{})
	require.NoError(t, err)

	total, err := s.Usage(ctx, OrganizationPrefix("org_1"))
	require.NoError(t, err)
	assert.Equal(t, int64(60), total)

	total, err = s.Usage(ctx, OrganizationPrefix("org_missing"))
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestLocalStorage_RejectsTraversal(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	for _, key := range []string{"", "../etc/passwd", "organizations/../../x", "/abs/path"} {
		_, err := s.Put(ctx, key, strings.NewReader("x"), PutOptions{})
		assert.True(t, errors.Is(err, ErrInvalidKey), "key %q", key)
	}
}

func TestIsAllowedUploadType(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"application/pdf", true},
		{"text/plain; charset=utf-8", true},
		{"IMAGE/PNG", true},
		{"application/x-msdownload", false},
		{"video/mp4", false},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAllowedUploadType(tt.contentType))
		})
	}
}

func TestWrapS3Error(t *testing.T) {
	assert.Nil(t, wrapS3Error(nil))
	assert.ErrorContains(t, wrapS3Error(io.ErrUnexpectedEOF), "object storage operation failed")
}

func TestToDomain(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"too large", &StorageError{Op: "Put", Key: "k", Err: ErrTooLarge}, domain.ETOOLARGE},
		{"invalid key", ErrInvalidKey, domain.EINVALID},
		{"not found", &StorageError{Op: "Get", Key: "k", Err: ErrNotFound}, domain.ENOTFOUND},
		{"key exists", &StorageError{Op: "Put", Key: "k", Err: ErrKeyExists}, domain.ECONFLICT},
		{"access denied", &StorageError{Op: "Put", Key: "k", Err: ErrAccessDenied}, domain.EUNAVAILABLE},
		{"backend fault", fmt.Errorf("dial tcp: %w", io.ErrUnexpectedEOF), domain.EUNAVAILABLE},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ToDomain("files.upload", tt.err)
			require.Error(t, err)
			assert.Equal(t, tt.code, domain.ErrorCode(err))
		})
	}

	assert.NoError(t, ToDomain("files.upload", nil))
}

func TestToDomain_HidesBackendDetail(t *testing.T) {
	err := ToDomain("files.link", &StorageError{Op: "URL", Key: "org/x", Err: errors.New("SignatureDoesNotMatch")})
	assert.Equal(t, "File storage is temporarily unavailable", domain.ErrorMessage(err))
}
