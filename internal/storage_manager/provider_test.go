package storage_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/memory_engine/internal/storage_manager/mocks"
)

func TestLocalFileProvider(t *testing.T) {
	base := t.TempDir()
	p := NewLocalFileProvider(base)
	ctx := context.Background()

	_, err := p.Read(ctx, "records/1.json")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, p.Write(ctx, "records/1.json", []byte("one")))
	require.NoError(t, p.Write(ctx, "records/1.json", []byte("two")))

	got, err := p.Read(ctx, "records/1.json")
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	info, err := os.Stat(filepath.Join(base, "records", "1.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Join(base, "records"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	ok, err := p.Exists(ctx, "records/1.json")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, p.Delete(ctx, "records/1.json"))
	require.NoError(t, p.Delete(ctx, "records/1.json"))

	ok, err = p.Exists(ctx, "records/1.json")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalFileProvider_ListSkipsTempFiles(t *testing.T) {
	base := t.TempDir()
	p := NewLocalFileProvider(base)
	ctx := context.Background()

	require.NoError(t, p.Write(ctx, "index/b.vix", []byte("b")))
	require.NoError(t, p.Write(ctx, "index/a.vix", []byte("a")))
	require.NoError(t, os.WriteFile(filepath.Join(base, "index", ".a.vix.tmp-123"), []byte("partial"), 0o600))

	files, err := p.List(ctx, "index")
	require.NoError(t, err)
	assert.Equal(t, []string{"index/a.vix", "index/b.vix"}, files)

	files, err = p.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestPrefixedFileProvider(t *testing.T) {
	base := NewLocalFileProvider(t.TempDir())
	records := NewPrefixedFileProvider(base, "/records/")
	index := NewPrefixedFileProvider(base, "index")
	ctx := context.Background()

	require.NoError(t, records.Write(ctx, "1.json", []byte("r")))
	require.NoError(t, index.Write(ctx, "conversation.vix", []byte("i")))

	raw, err := base.Read(ctx, "records/1.json")
	require.NoError(t, err)
	assert.Equal(t, "r", string(raw))

	files, err := records.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.json"}, files)

	ok, err := index.Exists(ctx, "1.json")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStorageManager_New(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"local", Config{Backend: BackendLocal, LocalConfig: &LocalConfig{BaseDir: t.TempDir()}}, false},
		{"local without dir", Config{Backend: BackendLocal}, true},
		{"s3 without bucket", Config{Backend: BackendS3, S3Config: &S3Config{}}, true},
		{"s3 without client", Config{Backend: BackendS3, S3Config: &S3Config{Bucket: "b"}}, true},
		{"git", Config{Backend: BackendGit, GitConfig: &GitProviderOptions{Path: filepath.Join(t.TempDir(), "g"), InitIfMissing: true}}, false},
		{"git without config", Config{Backend: BackendGit}, true},
		{"unknown", Config{Backend: "ftp"}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := New(tc.cfg)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.cfg.Backend, m.Backend())
			assert.NoError(t, m.Verify(context.Background()))
		})
	}
}

func TestStorageManager_VerifyFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("write fails", func(t *testing.T) {
		fp := mocks.NewFileProvider(t)
		fp.EXPECT().Write(ctx, roundTripPath, []byte("ok")).Return(errors.New("disk full"))
		assert.ErrorContains(t, NewWithProvider(fp).Verify(ctx), "disk full")
	})

	t.Run("read back mismatch", func(t *testing.T) {
		fp := mocks.NewFileProvider(t)
		fp.EXPECT().Write(ctx, roundTripPath, []byte("ok")).Return(nil)
		fp.EXPECT().Read(ctx, roundTripPath).Return([]byte("ko"), nil)
		assert.Error(t, NewWithProvider(fp).Verify(ctx))
	})
}
