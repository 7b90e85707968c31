package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourccey/kiosk-relay/internal/client"
	"github.com/sourccey/kiosk-relay/internal/config"
	"github.com/sourccey/kiosk-relay/internal/discovery"
	apperrors "github.com/sourccey/kiosk-relay/internal/errors"
	"github.com/sourccey/kiosk-relay/internal/model"
	"github.com/sourccey/kiosk-relay/internal/repository"
)

type fakeHost struct {
	mu      sync.Mutex
	running map[string]bool
}

func newFakeHost() *fakeHost {
	return &fakeHost{running: make(map[string]bool)}
}

func (h *fakeHost) Start(_ context.Context, nickname string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running[nickname] = true
	return "Robot starting for nickname: " + nickname, nil
}

func (h *fakeHost) Stop(_ context.Context, nickname string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running[nickname] {
		return "", fmt.Errorf("No kiosk host process found for nickname: %s", nickname)
	}
	delete(h.running, nickname)
	return "Robot stopping for nickname: " + nickname, nil
}

func (h *fakeHost) Status(_ context.Context, nickname string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running[nickname] {
		return model.RobotStatusStarted, nil
	}
	return model.RobotStatusStopped, nil
}

type fakeDownloader struct {
	calls chan string
}

func (d *fakeDownloader) Download(_ context.Context, repoID, _ string) error {
	d.calls <- repoID
	return nil
}

func testConfig(t *testing.T, cacheDir string) *config.Config {
	t.Helper()
	return &config.Config{
		CacheDir:              cacheDir,
		BindHost:              "127.0.0.1",
		DiscoveryPort:         0,
		ServicePort:           0,
		UIAddr:                "127.0.0.1:0",
		RobotName:             config.DefaultRobotName,
		Nickname:              config.DefaultNickname,
		RobotType:             config.DefaultRobotType,
		PairingCodeTTLSeconds: 600,
		RequestReadTimeout:    5 * time.Second,
		PairAttemptsPerMin:    10,
		PythonPath:            "python3",
		HostCommand:           []string{"-m", "host"},
		HostProcessMatch:      "sourccey_host",
	}
}

func startRuntime(t *testing.T, cfg *config.Config, opts ...Option) *Runtime {
	t.Helper()
	rt, err := New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, rt.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rt.Shutdown(ctx)
	})
	return rt
}

func dialClient(t *testing.T, rt *Runtime) *client.Client {
	t.Helper()
	addr := rt.ServiceAddr().(*net.TCPAddr)
	return client.New("127.0.0.1", addr.Port, client.WithTimeouts(time.Second, 3*time.Second))
}

func TestRuntime_EndToEnd(t *testing.T) {
	cacheDir := t.TempDir()
	dl := &fakeDownloader{calls: make(chan string, 1)}
	rt := startRuntime(t, testConfig(t, cacheDir), WithHost(newFakeHost()), WithDownloader(dl))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	t.Run("discovery finds the robot", func(t *testing.T) {
		robots, err := discovery.Discover(ctx, discovery.Options{
			Timeout: 500 * time.Millisecond,
			Target:  rt.DiscoveryAddr(),
		})
		require.NoError(t, err)
		require.Len(t, robots, 1)
		assert.Equal(t, "127.0.0.1", robots[0].Host)
		assert.Equal(t, "Sourccey", robots[0].RobotName)
		assert.Equal(t, "sourccey", robots[0].Nickname)
	})

	c := dialClient(t, rt)
	var token string

	t.Run("pair with the displayed code", func(t *testing.T) {
		info, err := rt.Service().PairingInfo(ctx)
		require.NoError(t, err)

		result, err := c.Pair(ctx, info.Code)
		require.NoError(t, err)
		assert.NotEmpty(t, result.Token)
		assert.Equal(t, "sourccey", result.Nickname)
		token = result.Token

		_, err = c.Pair(ctx, info.Code)
		require.Error(t, err)
		assert.Equal(t, "Invalid pairing code", apperrors.MessageOf(err))
	})

	t.Run("authorized commands", func(t *testing.T) {
		msg, err := c.Ping(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "Robot reachable", msg)

		msg, err = c.StartRobot(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "Robot starting for nickname: sourccey", msg)

		status, err := c.RobotStatus(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "started", status)

		msg, err = c.StopRobot(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "Robot stopping for nickname: sourccey", msg)

		_, err = c.StopRobot(ctx, token)
		require.Error(t, err)
		assert.Equal(t, "No kiosk host process found for nickname: sourccey", apperrors.MessageOf(err))
	})

	t.Run("unknown token is rejected", func(t *testing.T) {
		_, err := c.Ping(ctx, "not-a-token")
		require.Error(t, err)
		assert.Equal(t, "Unauthorized request", apperrors.MessageOf(err))
	})

	t.Run("send model runs a download job", func(t *testing.T) {
		msg, err := c.SendModel(ctx, token, "org/policy", "act")
		require.NoError(t, err)
		assert.Equal(t, "Model download started on robot", msg)

		select {
		case repo := <-dl.calls:
			assert.Equal(t, "org/policy", repo)
		case <-ctx.Done():
			t.Fatal("download was not started")
		}

		records := repository.NewDownloadRecordStore(filepath.Join(cacheDir, "ai_models"))
		modelPath, err := records.ModelPath("org/policy", "act")
		require.NoError(t, err)
		assert.Eventually(t, func() bool {
			rec, err := records.Read(modelPath)
			return err == nil && rec.Status == model.DownloadStatusDownloaded
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("ui bridge serves pairing info", func(t *testing.T) {
		resp, err := http.Get("http://" + rt.UIAddr().String() + "/api/pairing")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var info model.PairingInfo
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
		assert.Regexp(t, `^\d{6}$`, info.Code)
		assert.Equal(t, "sourccey", info.Nickname)
	})

	t.Run("ui bridge health", func(t *testing.T) {
		resp, err := http.Get("http://" + rt.UIAddr().String() + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestRuntime_StartIsIdempotent(t *testing.T) {
	rt := startRuntime(t, testConfig(t, t.TempDir()), WithHost(newFakeHost()))
	addr := rt.ServiceAddr().String()

	require.NoError(t, rt.Start())
	assert.Equal(t, addr, rt.ServiceAddr().String())
}

func TestRuntime_TokensSurviveRestart(t *testing.T) {
	cacheDir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	first, err := New(testConfig(t, cacheDir), WithHost(newFakeHost()))
	require.NoError(t, err)
	require.NoError(t, first.Start())

	info, err := first.Service().PairingInfo(ctx)
	require.NoError(t, err)
	result, err := dialClient(t, first).Pair(ctx, info.Code)
	require.NoError(t, err)
	require.NoError(t, first.Shutdown(ctx))

	second := startRuntime(t, testConfig(t, cacheDir), WithHost(newFakeHost()))
	msg, err := dialClient(t, second).Ping(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, "Robot reachable", msg)
}
