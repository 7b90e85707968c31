package server

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/sourccey/kiosk-relay/internal/errors"
	"github.com/sourccey/kiosk-relay/internal/metrics"
	"github.com/sourccey/kiosk-relay/internal/model"
	"github.com/sourccey/kiosk-relay/internal/service"
)

type handlerFunc func(ctx context.Context, req model.Request) (model.Response, error)

func (s *Server) routes() map[model.Action]handlerFunc {
	return map[model.Action]handlerFunc{
		model.ActionPair:          s.handlePair,
		model.ActionShowPairing:   s.handleShowPairing,
		model.ActionPing:          s.handlePing,
		model.ActionStartRobot:    s.handleStartRobot,
		model.ActionStopRobot:     s.handleStopRobot,
		model.ActionRobotStatus:   s.handleRobotStatus,
		model.ActionDownloadModel: s.handleDownloadModel,
	}
}

func (s *Server) dispatch(ctx context.Context, req model.Request) model.Response {
	start := time.Now()
	action := string(req.Action)

	handler, ok := s.handlers[req.Action]
	if !ok {
		action = "unsupported"
		handler = func(context.Context, model.Request) (model.Response, error) {
			return model.Response{}, apperrors.UnsupportedAction()
		}
	}

	resp, err := handler(ctx, req)
	if err != nil {
		resp = model.Response{OK: false, Message: apperrors.MessageOf(err)}
		metrics.RequestsTotal.WithLabelValues(action, metrics.OutcomeRejected).Inc()
		log.Debug().
			Str("action", action).
			Str("code", string(apperrors.GetCode(err))).
			Str("ip", service.RemoteIPFromContext(ctx)).
			Msg("request rejected")
	} else {
		metrics.RequestsTotal.WithLabelValues(action, metrics.OutcomeOK).Inc()
	}
	metrics.RequestDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())

	if resp.ServicePort == 0 {
		resp.ServicePort = s.svc.ServicePort()
	}
	return resp
}

func requireField(value *string, missing *apperrors.AppError) (string, error) {
	if value == nil {
		return "", missing
	}
	return *value, nil
}

func (s *Server) handlePair(ctx context.Context, req model.Request) (model.Response, error) {
	code, err := requireField(req.Code, apperrors.MissingPairingCode())
	if err != nil {
		return model.Response{}, err
	}
	result, err := s.svc.Pair(ctx, code, model.StringValue(req.ClientName))
	if err != nil {
		return model.Response{}, err
	}
	resp := model.Response{OK: true, Message: service.MsgPairingSuccessful, Token: result.Token}
	return resp.WithIdentity(result.RobotIdentity), nil
}

func (s *Server) handleShowPairing(ctx context.Context, _ model.Request) (model.Response, error) {
	identity, err := s.svc.ShowPairing(ctx)
	if err != nil {
		return model.Response{}, err
	}
	resp := model.Response{OK: true, Message: service.MsgPairingModalOpened}
	return resp.WithIdentity(identity), nil
}

func (s *Server) handlePing(ctx context.Context, req model.Request) (model.Response, error) {
	token, err := requireField(req.Token, apperrors.MissingToken())
	if err != nil {
		return model.Response{}, err
	}
	if err := s.svc.Ping(ctx, token); err != nil {
		return model.Response{}, err
	}
	return model.Response{OK: true, Message: service.MsgRobotReachable}, nil
}

func (s *Server) handleStartRobot(ctx context.Context, req model.Request) (model.Response, error) {
	return s.tokenCommand(ctx, req, s.svc.StartRobot)
}

func (s *Server) handleStopRobot(ctx context.Context, req model.Request) (model.Response, error) {
	return s.tokenCommand(ctx, req, s.svc.StopRobot)
}

func (s *Server) handleRobotStatus(ctx context.Context, req model.Request) (model.Response, error) {
	return s.tokenCommand(ctx, req, s.svc.RobotStatus)
}

func (s *Server) tokenCommand(
	ctx context.Context,
	req model.Request,
	call func(ctx context.Context, token string) (string, error),
) (model.Response, error) {
	token, err := requireField(req.Token, apperrors.MissingToken())
	if err != nil {
		return model.Response{}, err
	}
	msg, err := call(ctx, token)
	if err != nil {
		return model.Response{}, err
	}
	return model.Response{OK: true, Message: msg}, nil
}

func (s *Server) handleDownloadModel(ctx context.Context, req model.Request) (model.Response, error) {
	token, err := requireField(req.Token, apperrors.MissingToken())
	if err != nil {
		return model.Response{}, err
	}
	repoID, err := requireField(req.RepoID, apperrors.MissingField("repo_id"))
	if err != nil {
		return model.Response{}, err
	}
	modelName, err := requireField(req.ModelName, apperrors.MissingField("model_name"))
	if err != nil {
		return model.Response{}, err
	}
	msg, err := s.svc.DownloadModel(ctx, token, repoID, modelName)
	if err != nil {
		return model.Response{}, err
	}
	return model.Response{OK: true, Message: msg}, nil
}
