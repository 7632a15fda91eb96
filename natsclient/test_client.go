package natsclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const defaultTestImage = "nats:2.11.7-alpine"

// TestServer is a JetStream-enabled NATS server in a container plus a connected Client.
type TestServer struct {
	Client *Client
	URL    string

	container testcontainers.Container
}

type testServerConfig struct {
	image        string
	buckets      []string
	dialTimeout  time.Duration
	startTimeout time.Duration
}

// TestServerOption configures StartTestServer
type TestServerOption func(*testServerConfig)

// WithBuckets creates document buckets once the server is up
func WithBuckets(names ...string) TestServerOption {
	return func(cfg *testServerConfig) { cfg.buckets = append(cfg.buckets, names...) }
}

// WithImage overrides the server image
func WithImage(image string) TestServerOption {
	return func(cfg *testServerConfig) { cfg.image = image }
}

// WithStartupTimeout bounds the wait for the container to accept connections
func WithStartupTimeout(d time.Duration) TestServerOption {
	return func(cfg *testServerConfig) { cfg.startTimeout = d }
}

// StartTestServer starts a server and connects a client to it. The caller must call Stop.
func StartTestServer(ctx context.Context, opts ...TestServerOption) (*TestServer, error) {
	cfg := testServerConfig{
		image:        defaultTestImage,
		dialTimeout:  5 * time.Second,
		startTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        cfg.image,
			ExposedPorts: []string{"4222/tcp", "8222/tcp"},
			Cmd:          []string{"--js", "--http_port", "8222"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("4222/tcp"),
				wait.ForHTTP("/healthz").WithPort("8222/tcp").WithStartupTimeout(cfg.startTimeout),
			),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start nats container: %w", err)
	}

	srv := &TestServer{container: container}
	if err := srv.connect(ctx, cfg); err != nil {
		srv.Stop()
		return nil, err
	}
	return srv, nil
}

func (s *TestServer) connect(ctx context.Context, cfg testServerConfig) error {
	endpoint, err := s.container.PortEndpoint(ctx, "4222/tcp", "nats")
	if err != nil {
		return fmt.Errorf("resolve nats endpoint: %w", err)
	}
	s.URL = endpoint

	client, err := NewClient(endpoint,
		WithTimeout(cfg.dialTimeout),
		WithMaxReconnects(0),
		WithProbeInterval(0),
	)
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.dialTimeout)
	defer cancel()
	if err := client.Connect(dialCtx); err != nil {
		return fmt.Errorf("connect to %s: %w", endpoint, err)
	}
	s.Client = client

	for _, name := range cfg.buckets {
		if _, err := client.EnsureBucket(ctx, BucketConfig{Name: name}); err != nil {
			return fmt.Errorf("create bucket %s: %w", name, err)
		}
	}
	return nil
}

// NewTestServer starts a server that is stopped when the test ends
func NewTestServer(t testing.TB, opts ...TestServerOption) *TestServer {
	t.Helper()
	srv, err := StartTestServer(context.Background(), opts...)
	if err != nil {
		t.Fatalf("nats test server: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv
}

// Stop closes the client and terminates the container. Safe to call more than once.
func (s *TestServer) Stop() {
	ctx := context.Background()
	if s.Client != nil {
		_ = s.Client.Close(ctx)
	}
	if s.container != nil {
		_ = s.container.Terminate(ctx)
		s.container = nil
	}
}

// OpenStore opens a document remote over bucket name, keeping five revisions per key
func (s *TestServer) OpenStore(ctx context.Context, name string, opts ...func(*KVOptions)) (*KVStore, error) {
	return s.Client.OpenStore(ctx, BucketConfig{Name: name, History: 5}, opts...)
}
