package testutil

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"testing"
	"time"

	mclient "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Return random free port on 127.0.0.1 address
func RandomPort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:")
	if err != nil {
		return 0, err
	}
	defer ln.Close() // nolint:errcheck

	addr := ln.Addr().(*net.TCPAddr)
	return addr.Port, nil
}

// Skip test if docker is not available
func RequireDocker(t *testing.T) {
	t.Helper()

	cmd := exec.Command("docker", "info", "--format", "{{.ServerVersion}}")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Skipf("docker not available or not running, skip container test. Out:%s", out)
	}
}

type MongoContainer struct {
	URI       string
	Terminate func()
}

// Start container with mongo
// Stop if error happened, so you may be sure container started ok
// Should be stopped when tests stopped
func StartMongoContainer(t *testing.T) MongoContainer {
	t.Helper()
	RequireDocker(t)

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7.0",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Error happened when starting container with mongo, deal with it please")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017/tcp")
	require.NoError(t, err)

	uri := fmt.Sprintf("mongodb://%s:%s", host, port.Port())
	t.Logf("Container with mongo started, URI=%v", uri)

	return MongoContainer{
		URI: uri,
		Terminate: func() {
			testcontainers.CleanupContainer(t, container)
		},
	}
}

type MinioContainer struct {
	Endpoint  string // host:port, no scheme
	AccessKey string
	SecretKey string
	Bucket    string
	Terminate func()
}

// Start container with minio and create bucket in it
func StartMinioContainer(t *testing.T) MinioContainer {
	t.Helper()
	RequireDocker(t)

	const (
		rootUser     = "videotube"
		rootPassword = "videotube-secret"
		bucket       = "media"
	)

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "docker.io/minio/minio:latest",
			Env: map[string]string{
				"MINIO_ROOT_USER":     rootUser,
				"MINIO_ROOT_PASSWORD": rootPassword,
			},
			Cmd:          []string{"server", "/data"},
			ExposedPorts: []string{"9000/tcp"},
			WaitingFor:   wait.ForListeningPort("9000/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Error happened when starting container with minio")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000/tcp")
	require.NoError(t, err)
	endpoint := host + ":" + port.Port()

	admin, err := mclient.New(endpoint, &mclient.Options{
		Creds:  credentials.NewStaticV4(rootUser, rootPassword, ""),
		Secure: false,
	})
	require.NoError(t, err)
	err = admin.MakeBucket(ctx, bucket, mclient.MakeBucketOptions{Region: "us-east-1"})
	require.NoError(t, err)

	t.Logf("Container with minio started, endpoint=%v", endpoint)

	return MinioContainer{
		Endpoint:  endpoint,
		AccessKey: rootUser,
		SecretKey: rootPassword,
		Bucket:    bucket,
		Terminate: func() {
			testcontainers.CleanupContainer(t, container)
		},
	}
}
