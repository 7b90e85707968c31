package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sourccey/kiosk-relay/internal/audit"
	"github.com/sourccey/kiosk-relay/internal/config"
	apperrors "github.com/sourccey/kiosk-relay/internal/errors"
	"github.com/sourccey/kiosk-relay/internal/metrics"
	"github.com/sourccey/kiosk-relay/internal/model"
	"github.com/sourccey/kiosk-relay/internal/processhost"
	"github.com/sourccey/kiosk-relay/internal/ratelimit"
	"github.com/sourccey/kiosk-relay/internal/repository"
)

const (
	MsgPairingSuccessful       = "Pairing successful"
	MsgPairingModalOpened      = "Pairing modal opened"
	MsgRobotReachable          = "Robot reachable"
	MsgDownloadStarted         = "Model download started on robot"
	MsgDownloadAlreadyRunning  = "Model download already in progress on robot"
	MsgDownloadQueueFailedBase = "Failed to queue model download"
)

type Dependencies struct {
	State       *PairingState
	Tokens      repository.TokenStore
	Records     *repository.DownloadRecordStore
	Downloads   *DownloadRunner
	Host        processhost.Host
	Notifier    Notifier
	PairLimiter ratelimit.Limiter
}

type PairingService struct {
	state       *PairingState
	tokens      repository.TokenStore
	records     *repository.DownloadRecordStore
	downloads   *DownloadRunner
	host        processhost.Host
	notifier    Notifier
	pairLimiter ratelimit.Limiter
}

func NewPairingService(deps Dependencies) *PairingService {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &PairingService{
		state:       deps.State,
		tokens:      deps.Tokens,
		records:     deps.Records,
		downloads:   deps.Downloads,
		host:        deps.Host,
		notifier:    notifier,
		pairLimiter: deps.PairLimiter,
	}
}

func (s *PairingService) Identity() model.RobotIdentity {
	return s.state.Identity()
}

func (s *PairingService) ServicePort() int {
	return s.state.Identity().ServicePort
}

func (s *PairingService) PairingInfo(ctx context.Context) (model.PairingInfo, error) {
	info, err := s.state.PairingInfo()
	if err != nil {
		return model.PairingInfo{}, apperrors.StateUnavailable(err)
	}
	return info, nil
}

func (s *PairingService) Pair(ctx context.Context, code, clientName string) (model.PairResult, error) {
	ip := RemoteIPFromContext(ctx)
	code = strings.TrimSpace(code)

	if s.pairLimiter != nil && !s.pairLimiter.Allow(ctx, ratelimit.PairAttemptKey(ip)) {
		metrics.PairAttemptsTotal.WithLabelValues("rate_limited").Inc()
		audit.Log(ctx, audit.Event{
			Type:       audit.EventRateLimitExceed,
			Action:     string(model.ActionPair),
			ClientName: clientName,
			IP:         ip,
		})
		return model.PairResult{}, apperrors.InvalidPairingCode()
	}

	token, snapshot, matched, err := s.state.ConsumeCode(code)
	if err != nil {
		return model.PairResult{}, apperrors.StateUnavailable(err)
	}
	if !matched {
		metrics.PairAttemptsTotal.WithLabelValues("invalid_code").Inc()
		audit.Log(ctx, audit.Event{
			Type:       audit.EventPairFailure,
			Action:     string(model.ActionPair),
			ClientName: clientName,
			IP:         ip,
		})
		return model.PairResult{}, apperrors.InvalidPairingCode()
	}

	if err := s.tokens.Save(snapshot); err != nil {
		log.Error().Err(err).Msg("failed to persist pairing tokens")
	}
	metrics.ActiveTokens.Set(float64(len(snapshot.Tokens)))
	metrics.PairAttemptsTotal.WithLabelValues("success").Inc()

	s.notifier.Notify(ctx, model.EventPairingClose, SourcePayload{Source: config.EventSource})

	audit.Log(ctx, audit.Event{
		Type:       audit.EventPairSuccess,
		Action:     string(model.ActionPair),
		ClientName: clientName,
		IP:         ip,
		Details:    map[string]interface{}{"active_tokens": len(snapshot.Tokens)},
	})

	return model.PairResult{Token: token, RobotIdentity: s.state.Identity()}, nil
}

func (s *PairingService) ShowPairing(ctx context.Context) (model.RobotIdentity, error) {
	info, err := s.state.PairingInfo()
	if err != nil {
		return model.RobotIdentity{}, apperrors.StateUnavailable(err)
	}

	s.notifier.Notify(ctx, model.EventPairingOpen, SourcePayload{Source: config.EventSource})
	audit.Log(ctx, audit.Event{
		Type:   audit.EventShowPairing,
		Action: string(model.ActionShowPairing),
		IP:     RemoteIPFromContext(ctx),
	})

	return info.RobotIdentity, nil
}

func (s *PairingService) authorize(ctx context.Context, action model.Action, token string) error {
	ok, err := s.state.HasToken(token)
	if err != nil {
		return apperrors.StateUnavailable(err)
	}
	if !ok {
		audit.Log(ctx, audit.Event{
			Type:   audit.EventAuthFailure,
			Action: string(action),
			IP:     RemoteIPFromContext(ctx),
		})
		return apperrors.Unauthorized()
	}
	return nil
}

func (s *PairingService) Ping(ctx context.Context, token string) error {
	return s.authorize(ctx, model.ActionPing, token)
}

func (s *PairingService) StartRobot(ctx context.Context, token string) (string, error) {
	return s.hostCommand(ctx, model.ActionStartRobot, token, s.host.Start)
}

func (s *PairingService) StopRobot(ctx context.Context, token string) (string, error) {
	return s.hostCommand(ctx, model.ActionStopRobot, token, s.host.Stop)
}

func (s *PairingService) RobotStatus(ctx context.Context, token string) (string, error) {
	return s.hostCommand(ctx, model.ActionRobotStatus, token, s.host.Status)
}

func (s *PairingService) hostCommand(
	ctx context.Context,
	action model.Action,
	token string,
	call func(ctx context.Context, nickname string) (string, error),
) (string, error) {
	if err := s.authorize(ctx, action, token); err != nil {
		return "", err
	}

	nickname := s.state.Identity().Nickname
	audit.Log(ctx, audit.Event{
		Type:    audit.EventRobotCommand,
		Action:  string(action),
		IP:      RemoteIPFromContext(ctx),
		Details: map[string]interface{}{"nickname": nickname},
	})

	msg, err := call(ctx, nickname)
	if err != nil {
		log.Warn().Err(err).Str("action", string(action)).Str("nickname", nickname).Msg("host command failed")
		return "", apperrors.External(err)
	}
	return msg, nil
}

func (s *PairingService) DownloadModel(ctx context.Context, token, repoID, modelName string) (string, error) {
	if err := s.authorize(ctx, model.ActionDownloadModel, token); err != nil {
		return "", err
	}
	if !IsSafeRepoID(repoID) {
		return "", apperrors.InvalidField("repo_id")
	}
	if !IsSafeModelName(modelName) {
		return "", apperrors.InvalidField("model_name")
	}

	modelPath, err := s.records.ModelPath(repoID, modelName)
	if err != nil {
		return "", apperrors.InvalidField("repo_id").WithCause(err)
	}
	job := model.DownloadJob{RepoID: repoID, ModelName: modelName, ModelPath: modelPath}

	admission, err := s.state.BeginDownload(token, job.Key())
	if err != nil {
		return "", apperrors.StateUnavailable(err)
	}
	switch admission {
	case DownloadUnauthorized:
		return "", apperrors.Unauthorized()
	case DownloadInProgress:
		return MsgDownloadAlreadyRunning, nil
	}

	if err := s.records.Queue(job); err != nil {
		if finishErr := s.state.FinishDownload(job.Key()); finishErr != nil {
			log.Warn().Err(finishErr).Str("job", job.Key()).Msg("failed to release download key")
		}
		return "", apperrors.Wrap(apperrors.ErrCodeInternal, fmt.Sprintf("%s: %v", MsgDownloadQueueFailedBase, err), err)
	}

	s.notifier.Notify(ctx, model.EventModelDownload, model.DownloadEvent{
		RepoID:    repoID,
		ModelName: modelName,
		Status:    model.DownloadStatusQueued,
		Source:    config.EventSource,
	})
	s.downloads.Spawn(job)

	log.Info().
		Str("repo_id", repoID).
		Str("model_name", modelName).
		Str("ip", RemoteIPFromContext(ctx)).
		Msg("model download queued")

	return MsgDownloadStarted, nil
}

// RevokeAllTokens erases every issued token and persists the empty set.
func (s *PairingService) RevokeAllTokens(ctx context.Context) (int, error) {
	snapshot, revoked, err := s.state.RevokeAllTokens()
	if err != nil {
		return 0, apperrors.StateUnavailable(err)
	}
	metrics.ActiveTokens.Set(0)

	audit.Log(ctx, audit.Event{
		Type:    audit.EventTokenRevoke,
		IP:      RemoteIPFromContext(ctx),
		Details: map[string]interface{}{"revoked": revoked},
	})

	if err := s.tokens.Save(snapshot); err != nil {
		return revoked, fmt.Errorf("persist revoked token set: %w", err)
	}
	return revoked, nil
}

func (s *PairingService) ActiveDownloads() ([]string, error) {
	keys, err := s.state.ActiveDownloads()
	if err != nil {
		return nil, apperrors.StateUnavailable(err)
	}
	return keys, nil
}
