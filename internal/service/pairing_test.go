package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/sourccey/kiosk-relay/internal/errors"
	"github.com/sourccey/kiosk-relay/internal/model"
	"github.com/sourccey/kiosk-relay/internal/repository"
)

type mockHost struct {
	mu        sync.Mutex
	calls     []string
	nicknames []string
	startMsg  string
	stopErr   error
	status    string
}

func (m *mockHost) record(call, nickname string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	m.nicknames = append(m.nicknames, nickname)
}

func (m *mockHost) Start(_ context.Context, nickname string) (string, error) {
	m.record("start", nickname)
	return m.startMsg, nil
}

func (m *mockHost) Stop(_ context.Context, nickname string) (string, error) {
	m.record("stop", nickname)
	if m.stopErr != nil {
		return "", m.stopErr
	}
	return "Robot stopping for nickname: " + nickname, nil
}

func (m *mockHost) Status(_ context.Context, nickname string) (string, error) {
	m.record("status", nickname)
	return m.status, nil
}

func (m *mockHost) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

type mockNotifier struct {
	mu     sync.Mutex
	events []string
}

func (m *mockNotifier) Notify(_ context.Context, event string, _ any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *mockNotifier) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

type mockDownloader struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
	err     error
	panic   bool
}

func (m *mockDownloader) Download(ctx context.Context, _ string, _ string) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.panic {
		panic("snapshot exploded")
	}
	return m.err
}

func (m *mockDownloader) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) bool { return false }

type fixture struct {
	service    *PairingService
	state      *PairingState
	tokens     *repository.FileTokenStore
	records    *repository.DownloadRecordStore
	runner     *DownloadRunner
	host       *mockHost
	notifier   *mockNotifier
	downloader *mockDownloader
	cacheDir   string
	clock      *fakeClock
}

type fixtureOption func(*fixture, *Dependencies)

func newFixture(t *testing.T, initialTokens []string, opts ...fixtureOption) *fixture {
	t.Helper()
	f := &fixture{
		cacheDir:   t.TempDir(),
		host:       &mockHost{startMsg: "Robot starting for nickname: sourccey", status: model.RobotStatusStopped},
		notifier:   &mockNotifier{},
		downloader: &mockDownloader{},
		clock:      newFakeClock(time.UnixMilli(1_700_000_000_000)),
	}
	f.tokens = repository.NewFileTokenStore(filepath.Join(f.cacheDir, "pairing", "pairing_state.json"))
	f.records = repository.NewDownloadRecordStore(filepath.Join(f.cacheDir, "ai_models"))
	f.state = NewPairingState(defaultIdentity, initialTokens,
		WithClock(f.clock.Now), WithCodeGenerator(sequenceCodes("042391", "517204", "880113")))
	t.Cleanup(f.state.Close)

	deps := Dependencies{
		State:    f.state,
		Tokens:   f.tokens,
		Records:  f.records,
		Host:     f.host,
		Notifier: f.notifier,
	}
	for _, opt := range opts {
		opt(f, &deps)
	}
	f.runner = NewDownloadRunner(context.Background(), f.state, f.records, f.downloader, f.notifier)
	deps.Downloads = f.runner
	f.service = NewPairingService(deps)
	return f
}

func withLimiter(f *fixture, deps *Dependencies) {
	deps.PairLimiter = denyLimiter{}
}

func requireAppError(t *testing.T, err error, code apperrors.ErrorCode, message string) {
	t.Helper()
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
	assert.Equal(t, message, appErr.Message)
}

func TestPairingService_PairScenario(t *testing.T) {
	t0 := time.UnixMilli(1_700_000_000_000)

	t.Run("stale code after ttl fails and a new code is active", func(t *testing.T) {
		f := newFixture(t, nil)
		f.clock.Set(t0.Add(601_000 * time.Millisecond))

		_, err := f.service.Pair(context.Background(), "042391", "Desktop App")
		requireAppError(t, err, apperrors.ErrCodeInvalidPairingCode, "Invalid pairing code")

		info, err := f.service.PairingInfo(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "517204", info.Code)
	})

	t.Run("fresh code pairs and returns identity", func(t *testing.T) {
		f := newFixture(t, nil)
		f.clock.Set(t0.Add(10 * time.Millisecond))

		result, err := f.service.Pair(context.Background(), "042391", "Desktop App")
		require.NoError(t, err)
		assert.NotEmpty(t, result.Token)
		assert.Equal(t, defaultIdentity, result.RobotIdentity)

		info, err := f.service.PairingInfo(context.Background())
		require.NoError(t, err)
		assert.NotEqual(t, "042391", info.Code)
		assert.Equal(t, []string{model.EventPairingClose}, f.notifier.Events())
	})

	t.Run("code is trimmed before comparison", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.service.Pair(context.Background(), " 042391\n", "")
		require.NoError(t, err)
	})
}

func TestPairingService_TokenPersistence(t *testing.T) {
	f := newFixture(t, nil)
	result, err := f.service.Pair(context.Background(), "042391", "Desktop App")
	require.NoError(t, err)

	loaded, err := repository.NewFileTokenStore(f.tokens.Path()).Load()
	require.NoError(t, err)
	assert.Equal(t, []string{result.Token}, loaded)

	restarted := NewPairingState(defaultIdentity, loaded)
	defer restarted.Close()
	ok, err := restarted.HasToken(result.Token)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPairingService_PairPersistFailureStillSucceeds(t *testing.T) {
	f := newFixture(t, nil)
	blocker := filepath.Join(f.cacheDir, "pairing")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0o600))

	result, err := f.service.Pair(context.Background(), "042391", "Desktop App")
	require.NoError(t, err)

	ok, err := f.state.HasToken(result.Token)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPairingService_PairRateLimited(t *testing.T) {
	f := newFixture(t, nil, withLimiter)
	ctx := WithRemoteIP(context.Background(), "192.168.1.50")

	_, err := f.service.Pair(ctx, "042391", "Desktop App")
	requireAppError(t, err, apperrors.ErrCodeInvalidPairingCode, "Invalid pairing code")

	info, err := f.service.PairingInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "042391", info.Code, "rate limited attempts must not consume the code")
}

func TestPairingService_ShowPairing(t *testing.T) {
	f := newFixture(t, nil)
	identity, err := f.service.ShowPairing(context.Background())
	require.NoError(t, err)
	assert.Equal(t, defaultIdentity, identity)
	assert.Equal(t, []string{model.EventPairingOpen}, f.notifier.Events())
}

func TestPairingService_Ping(t *testing.T) {
	f := newFixture(t, []string{"valid-token"})

	t.Run("valid token", func(t *testing.T) {
		assert.NoError(t, f.service.Ping(context.Background(), "valid-token"))
	})

	t.Run("unknown token", func(t *testing.T) {
		err := f.service.Ping(context.Background(), "nope")
		requireAppError(t, err, apperrors.ErrCodeUnauthorized, "Unauthorized request")
	})
}

func TestPairingService_HostCommands(t *testing.T) {
	t.Run("start relays host message", func(t *testing.T) {
		f := newFixture(t, []string{"tok"})
		msg, err := f.service.StartRobot(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, "Robot starting for nickname: sourccey", msg)
		assert.Equal(t, []string{"sourccey"}, f.host.nicknames)
	})

	t.Run("stop relays host error verbatim", func(t *testing.T) {
		f := newFixture(t, []string{"tok"})
		f.host.stopErr = errors.New("No kiosk host process found for nickname: sourccey")
		_, err := f.service.StopRobot(context.Background(), "tok")
		requireAppError(t, err, apperrors.ErrCodeExternal, "No kiosk host process found for nickname: sourccey")
	})

	t.Run("status returns host state", func(t *testing.T) {
		f := newFixture(t, []string{"tok"})
		f.host.status = model.RobotStatusStarted
		status, err := f.service.RobotStatus(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, "started", status)
	})

	t.Run("unauthorized never reaches host", func(t *testing.T) {
		f := newFixture(t, []string{"tok"})
		_, err := f.service.StartRobot(context.Background(), "wrong")
		requireAppError(t, err, apperrors.ErrCodeUnauthorized, "Unauthorized request")
		assert.Empty(t, f.host.Calls())
	})
}

func TestPairingService_RevokeAllTokens(t *testing.T) {
	f := newFixture(t, []string{"a", "b"})

	revoked, err := f.service.RevokeAllTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, revoked)

	assert.Error(t, f.service.Ping(context.Background(), "a"))

	loaded, err := f.tokens.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
