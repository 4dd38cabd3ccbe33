//go:build integration

package s3

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
)

func TestStore_MinIO_PutGet(t *testing.T) {
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		Cmd:          []string{"server", "/data"},
		Env:          map[string]string{"MINIO_ROOT_USER": "minioadmin", "MINIO_ROOT_PASSWORD": "minioadmin"},
		ExposedPorts: []string{"9000/tcp"},
		WaitingFor:   wait.ForHTTP("/minio/health/live").WithPort("9000/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })
	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "9000")
	require.NoError(t, err)

	s, err := New(Config{Endpoint: host + ":" + port.Port(), AccessKey: "minioadmin", SecretKey: "minioadmin", Bucket: "catalog"})
	require.NoError(t, err)

	dir := t.TempDir()
	src := filepath.Join(dir, "laptops.csv")
	require.NoError(t, os.WriteFile(src, []byte("Description,Price\nx,30000\n"), 0o600))
	require.NoError(t, s.Put(ctx, src, "laptops.csv"))

	dst := filepath.Join(dir, "copy.csv")
	require.NoError(t, s.Get(ctx, "laptops.csv", dst))
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Contains(t, string(b), "30000")

	err = s.Get(ctx, "missing.csv", filepath.Join(dir, "m.csv"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
