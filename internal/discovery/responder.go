package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sourccey/kiosk-relay/internal/config"
	"github.com/sourccey/kiosk-relay/internal/metrics"
	"github.com/sourccey/kiosk-relay/internal/model"
)

const readPollInterval = 1 * time.Second

// IdentitySource supplies the identity advertised in discovery replies.
type IdentitySource interface {
	Identity() model.RobotIdentity
}

// Responder answers discovery probes on a UDP port.
type Responder struct {
	addr     string
	identity IdentitySource

	conn *net.UDPConn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewResponder(addr string, identity IdentitySource) *Responder {
	ctx, cancel := context.WithCancel(context.Background())
	return &Responder{
		addr:     addr,
		identity: identity,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start binds the socket and begins answering probes.
func (r *Responder) Start() error {
	udpAddr, err := net.ResolveUDPAddr("udp4", r.addr)
	if err != nil {
		return fmt.Errorf("resolve discovery address %s: %w", r.addr, err)
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to bind UDP %s: %w", r.addr, err)
	}
	r.conn = conn

	r.wg.Add(1)
	go r.listenLoop()

	log.Info().Str("addr", conn.LocalAddr().String()).Msg("discovery responder started")
	return nil
}

// Addr returns the bound address, or nil before Start.
func (r *Responder) Addr() *net.UDPAddr {
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr().(*net.UDPAddr)
}

// Stop closes the socket and waits for the loop to exit.
func (r *Responder) Stop() {
	r.cancel()
	if r.conn != nil {
		r.conn.Close()
	}
	r.wg.Wait()
	log.Info().Msg("discovery responder stopped")
}

func (r *Responder) listenLoop() {
	defer r.wg.Done()

	magic := []byte(config.DiscoveryMagic)
	buf := make([]byte, config.DiscoveryMaxMessageSize)
	for {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		r.conn.SetReadDeadline(time.Now().Add(readPollInterval))

		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if r.ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("discovery read error")
			continue
		}

		if !bytes.Equal(bytes.TrimSpace(buf[:n]), magic) {
			continue
		}

		r.reply(addr)
	}
}

func (r *Responder) reply(addr *net.UDPAddr) {
	payload, err := json.Marshal(model.DiscoveredRobot{RobotIdentity: r.identity.Identity()})
	if err != nil {
		log.Error().Err(err).Msg("failed to encode discovery reply")
		return
	}
	if _, err := r.conn.WriteToUDP(payload, addr); err != nil {
		if r.ctx.Err() == nil {
			log.Debug().Err(err).Str("peer", addr.String()).Msg("discovery reply failed")
		}
		return
	}
	metrics.DiscoveryRepliesTotal.Inc()
	log.Debug().Str("peer", addr.String()).Msg("answered discovery probe")
}
