package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const browserPort = "3000/tcp"

// DockerAPI is the part of the Docker client the launcher uses
type DockerAPI interface {
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	Close() error
}

// DockerOptions configures containerized browsers
type DockerOptions struct {
	Image        string
	ReadyTimeout time.Duration
	// Host the published browser port is reachable on
	Host string
}

// DockerLauncher runs every invocation's browser in its own browserless/chrome
// container and drives it over the DevTools protocol
type DockerLauncher struct {
	client DockerAPI
	opts   DockerOptions
	logger *zap.Logger

	imageGroup singleflight.Group
	imageReady atomic.Bool
	httpClient *http.Client
}

// NewDockerLauncher connects to the Docker daemon configured in the environment
func NewDockerLauncher(opts DockerOptions, logger *zap.Logger) (*DockerLauncher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newDockerLauncher(cli, opts, logger), nil
}

func newDockerLauncher(cli DockerAPI, opts DockerOptions, logger *zap.Logger) *DockerLauncher {
	if opts.Image == "" {
		opts.Image = "browserless/chrome:latest"
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 10 * time.Second
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	return &DockerLauncher{
		client:     cli,
		opts:       opts,
		logger:     logger,
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
}

// Acquire starts a container, waits until Chrome answers and connects to it
func (l *DockerLauncher) Acquire(ctx context.Context, invocationID string) (Sandbox, error) {
	logger := l.logger.With(zap.String("invocation_id", invocationID), zap.String("launcher", "docker"))

	if err := l.EnsureImage(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	containerID, port, err := l.startContainer(ctx, invocationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}
	release := func(ctx context.Context) error {
		return l.stopContainer(ctx, containerID)
	}

	if err := l.waitReady(ctx, port); err != nil {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			logger.Warn("failed to remove unready browser container", zap.String("container_id", containerID), zap.Error(rerr))
		}
		return nil, fmt.Errorf("%w: browser failed to become ready: %v", ErrLaunch, err)
	}

	wsURL := fmt.Sprintf("ws://%s:%s", l.opts.Host, port)
	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(context.Background(), wsURL)

	sb, err := startChrome(ctx, allocCtx, cancelAlloc, logger, release)
	if err != nil {
		return nil, err
	}

	logger.Debug("browser container ready", zap.String("container_id", containerID), zap.String("port", port))
	return sb, nil
}

func (l *DockerLauncher) startContainer(ctx context.Context, invocationID string) (string, string, error) {
	containerConfig := &container.Config{
		Image: l.opts.Image,
		Labels: map[string]string{
			"invocation-id": invocationID,
			"managed-by":    "chromeserver",
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",
			"MAX_CONCURRENT_SESSIONS=1",
			"PREBOOT_CHROME=true",
			"EXIT_ON_HEALTH_FAILURE=false",
		},
		ExposedPorts: nat.PortSet{
			browserPort: struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			browserPort: []nat.PortBinding{
				{
					HostIP:   l.opts.Host,
					HostPort: "0",
				},
			},
		},
		AutoRemove: false,
	}

	resp, err := l.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "chromeserver-"+invocationID)
	if err != nil {
		return "", "", fmt.Errorf("failed to create container: %w", err)
	}

	fail := func(err error) (string, string, error) {
		if rerr := l.client.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true}); rerr != nil {
			l.logger.Warn("failed to remove container", zap.String("container_id", resp.ID), zap.Error(rerr))
		}
		return "", "", err
	}

	if err := l.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fail(fmt.Errorf("failed to start container: %w", err))
	}

	inspect, err := l.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		return fail(fmt.Errorf("failed to inspect container: %w", err))
	}
	if inspect.NetworkSettings == nil || len(inspect.NetworkSettings.Ports[browserPort]) == 0 {
		return fail(errors.New("container has no published browser port"))
	}

	return resp.ID, inspect.NetworkSettings.Ports[browserPort][0].HostPort, nil
}

func (l *DockerLauncher) stopContainer(ctx context.Context, containerID string) error {
	timeout := 10
	if err := l.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		l.logger.Warn("failed to stop container, forcing removal", zap.String("container_id", containerID), zap.Error(err))
	}

	if err := l.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// EnsureImage pulls the browser image if it is missing. Concurrent callers share one pull.
func (l *DockerLauncher) EnsureImage(ctx context.Context) error {
	if l.imageReady.Load() {
		return nil
	}

	_, err, _ := l.imageGroup.Do(l.opts.Image, func() (any, error) {
		images, err := l.client.ImageList(ctx, image.ListOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to list images: %w", err)
		}

		for _, img := range images {
			for _, tag := range img.RepoTags {
				if tag == l.opts.Image {
					l.imageReady.Store(true)
					return nil, nil
				}
			}
		}

		l.logger.Info("pulling browser image", zap.String("image", l.opts.Image))
		reader, err := l.client.ImagePull(ctx, l.opts.Image, image.PullOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to pull image: %w", err)
		}
		defer reader.Close()

		if _, err := io.Copy(io.Discard, reader); err != nil {
			return nil, fmt.Errorf("failed to pull image: %w", err)
		}
		l.imageReady.Store(true)
		return nil, nil
	})
	return err
}

// waitReady polls /json/version until Chrome in the container answers
func (l *DockerLauncher) waitReady(ctx context.Context, port string) error {
	ctx, cancel := context.WithTimeout(ctx, l.opts.ReadyTimeout)
	defer cancel()

	url := fmt.Sprintf("http://%s:%s/json/version", l.opts.Host, port)
	limiter := rate.NewLimiter(rate.Every(250*time.Millisecond), 1)

	var lastErr error
	for {
		if err := limiter.Wait(ctx); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := l.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return nil
		}
		lastErr = fmt.Errorf("status %d", resp.StatusCode)
	}
}

// Close closes the Docker client
func (l *DockerLauncher) Close() error {
	return l.client.Close()
}
