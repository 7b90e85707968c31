package service

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sourccey/kiosk-relay/internal/config"
	"github.com/sourccey/kiosk-relay/internal/model"
)

var ErrStateClosed = errors.New("pairing state closed")

var codeModulus = big.NewInt(1_000_000)

// CodeGenerator returns a fresh six digit pairing code.
type CodeGenerator func() string

// GenerateCode takes the low six decimal digits of a random UUID.
func GenerateCode() string {
	id := uuid.New()
	n := new(big.Int).SetBytes(id[:])
	return fmt.Sprintf("%06d", n.Mod(n, codeModulus).Int64())
}

type StateOption func(*PairingState)

func WithClock(now func() time.Time) StateOption {
	return func(s *PairingState) { s.now = now }
}

func WithCodeGenerator(gen CodeGenerator) StateOption {
	return func(s *PairingState) { s.newCode = gen }
}

func WithCodeTTL(ttl time.Duration) StateOption {
	return func(s *PairingState) { s.ttl = ttl }
}

// DownloadAdmission is the outcome of BeginDownload.
type DownloadAdmission int

const (
	DownloadUnauthorized DownloadAdmission = iota
	DownloadInProgress
	DownloadAccepted
)

type pairingRuntime struct {
	code            string
	expiresAt       time.Time
	tokens          map[string]struct{}
	version         uint64
	activeDownloads map[string]struct{}
	listenerStarted bool
}

// PairingState owns the pairing code, the token set and the active download
// keys. A single goroutine applies every operation in arrival order; callers
// do their I/O after the operation returns.
type PairingState struct {
	identity model.RobotIdentity
	now      func() time.Time
	newCode  CodeGenerator
	ttl      time.Duration

	ops       chan func(*pairingRuntime)
	done      chan struct{}
	closeOnce sync.Once
}

func NewPairingState(identity model.RobotIdentity, tokens []string, opts ...StateOption) *PairingState {
	s := &PairingState{
		identity: identity,
		now:      time.Now,
		newCode:  GenerateCode,
		ttl:      config.DefaultPairingCodeTTL,
		ops:      make(chan func(*pairingRuntime)),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	rt := &pairingRuntime{
		tokens:          make(map[string]struct{}, len(tokens)),
		activeDownloads: make(map[string]struct{}),
	}
	for _, token := range tokens {
		if token != "" {
			rt.tokens[token] = struct{}{}
		}
	}
	s.rotate(rt)

	go s.loop(rt)
	return s
}

func (s *PairingState) loop(rt *pairingRuntime) {
	for {
		select {
		case op := <-s.ops:
			op(rt)
		case <-s.done:
			return
		}
	}
}

func (s *PairingState) do(op func(*pairingRuntime)) error {
	finished := make(chan struct{})
	wrapped := func(rt *pairingRuntime) {
		defer close(finished)
		op(rt)
	}
	select {
	case s.ops <- wrapped:
	case <-s.done:
		return ErrStateClosed
	}
	<-finished
	return nil
}

// Close stops the owner goroutine. Later calls return ErrStateClosed.
func (s *PairingState) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *PairingState) Identity() model.RobotIdentity {
	return s.identity
}

func (s *PairingState) rotate(rt *pairingRuntime) {
	previous := rt.code
	code := s.newCode()
	for i := 0; i < 8 && code == previous; i++ {
		code = s.newCode()
	}
	rt.code = code
	rt.expiresAt = s.now().Add(s.ttl)
}

func (s *PairingState) refresh(rt *pairingRuntime) {
	if !s.now().Before(rt.expiresAt) {
		s.rotate(rt)
	}
}

func snapshot(rt *pairingRuntime) model.TokenSnapshot {
	tokens := make([]string, 0, len(rt.tokens))
	for token := range rt.tokens {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return model.TokenSnapshot{Version: rt.version, Tokens: tokens}
}

// PairingInfo returns the current code, rotating it first if it expired.
func (s *PairingState) PairingInfo() (model.PairingInfo, error) {
	var info model.PairingInfo
	err := s.do(func(rt *pairingRuntime) {
		s.refresh(rt)
		info = model.PairingInfo{
			Code:          rt.code,
			ExpiresAtMs:   rt.expiresAt.UnixMilli(),
			RobotIdentity: s.identity,
		}
	})
	return info, err
}

// RotateExpiredCode rotates the code if it has expired and reports whether it did.
func (s *PairingState) RotateExpiredCode() (bool, error) {
	var rotated bool
	err := s.do(func(rt *pairingRuntime) {
		if !s.now().Before(rt.expiresAt) {
			s.rotate(rt)
			rotated = true
		}
	})
	return rotated, err
}

// ConsumeCode compares code against the active one. On a match it mints a
// token, rotates the code and returns the token set to persist.
func (s *PairingState) ConsumeCode(code string) (string, model.TokenSnapshot, bool, error) {
	var (
		token   string
		snap    model.TokenSnapshot
		matched bool
	)
	err := s.do(func(rt *pairingRuntime) {
		s.refresh(rt)
		if subtle.ConstantTimeCompare([]byte(rt.code), []byte(code)) != 1 {
			return
		}
		token = uuid.NewString()
		for {
			if _, taken := rt.tokens[token]; !taken {
				break
			}
			token = uuid.NewString()
		}
		rt.tokens[token] = struct{}{}
		rt.version++
		s.rotate(rt)
		snap = snapshot(rt)
		matched = true
	})
	return token, snap, matched, err
}

func (s *PairingState) HasToken(token string) (bool, error) {
	var ok bool
	err := s.do(func(rt *pairingRuntime) {
		_, ok = rt.tokens[token]
	})
	return ok, err
}

func (s *PairingState) TokenCount() (int, error) {
	var n int
	err := s.do(func(rt *pairingRuntime) {
		n = len(rt.tokens)
	})
	return n, err
}

// RevokeAllTokens erases every token and returns the empty set to persist.
func (s *PairingState) RevokeAllTokens() (model.TokenSnapshot, int, error) {
	var (
		snap    model.TokenSnapshot
		revoked int
	)
	err := s.do(func(rt *pairingRuntime) {
		revoked = len(rt.tokens)
		rt.tokens = make(map[string]struct{})
		rt.version++
		snap = snapshot(rt)
	})
	return snap, revoked, err
}

// BeginDownload checks the token and claims key in one step.
func (s *PairingState) BeginDownload(token, key string) (DownloadAdmission, error) {
	admission := DownloadUnauthorized
	err := s.do(func(rt *pairingRuntime) {
		if _, ok := rt.tokens[token]; !ok {
			return
		}
		if _, busy := rt.activeDownloads[key]; busy {
			admission = DownloadInProgress
			return
		}
		rt.activeDownloads[key] = struct{}{}
		admission = DownloadAccepted
	})
	return admission, err
}

func (s *PairingState) FinishDownload(key string) error {
	return s.do(func(rt *pairingRuntime) {
		delete(rt.activeDownloads, key)
	})
}

func (s *PairingState) ActiveDownloads() ([]string, error) {
	var keys []string
	err := s.do(func(rt *pairingRuntime) {
		keys = make([]string, 0, len(rt.activeDownloads))
		for key := range rt.activeDownloads {
			keys = append(keys, key)
		}
	})
	sort.Strings(keys)
	return keys, err
}

// MarkListenerStarted reports true only for the first call.
func (s *PairingState) MarkListenerStarted() (bool, error) {
	var first bool
	err := s.do(func(rt *pairingRuntime) {
		first = !rt.listenerStarted
		rt.listenerStarted = true
	})
	return first, err
}
