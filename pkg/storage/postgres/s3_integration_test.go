//go:build integration

package postgres

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupMinIO starts a MinIO container and returns an S3Client configured to use it
func setupMinIO(t *testing.T) *S3Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     "minioadmin",
				"MINIO_ROOT_PASSWORD": "minioadmin",
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start MinIO container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate MinIO container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	client, err := NewS3Client(ctx, S3Config{
		Bucket:       "audit-archive",
		Region:       "us-east-1",
		Endpoint:     "http://" + host + ":" + port.Port(),
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		UsePathStyle: true,
	})
	require.NoError(t, err)
	return client
}

func TestS3Client_PutObject_Integration(t *testing.T) {
	client := setupMinIO(t)
	ctx := context.Background()

	require.NoError(t, client.HealthCheck(ctx))

	exists, err := client.ObjectExists(ctx, "audit/batch.ndjson.gz")
	require.NoError(t, err)
	assert.False(t, exists)

	err = client.PutObject(ctx, "audit/batch.ndjson.gz", strings.NewReader(`{"id":1}`), "application/gzip")
	require.NoError(t, err)

	exists, err = client.ObjectExists(ctx, "audit/batch.ndjson.gz")
	require.NoError(t, err)
	assert.True(t, exists)
}
