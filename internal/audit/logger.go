package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventPairSuccess     EventType = "pair_success"
	EventPairFailure     EventType = "pair_failure"
	EventRateLimitExceed EventType = "rate_limit_exceeded"
	EventAuthFailure     EventType = "auth_failure"
	EventTokenRevoke     EventType = "token_revoke"
	EventShowPairing     EventType = "show_pairing"
	EventRobotCommand    EventType = "robot_command"
)

type Event struct {
	Type       EventType
	Action     string
	ClientName string
	IP         string
	Details    map[string]interface{}
}

func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.Action != "" {
		logger = logger.With().Str("action", event.Action).Logger()
	}
	if event.ClientName != "" {
		logger = logger.With().Str("client_name", event.ClientName).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}

	logEvent := logger.Info()
	if event.Type == EventAuthFailure || event.Type == EventRateLimitExceed || event.Type == EventPairFailure {
		logEvent = logger.Warn()
	}
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("security audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}
