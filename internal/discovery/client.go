package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sourccey/kiosk-relay/internal/config"
	"github.com/sourccey/kiosk-relay/internal/model"
)

type Options struct {
	// Timeout bounds the whole scan. Zero means the default; values below
	// the minimum are raised to it.
	Timeout time.Duration
	// Target overrides the broadcast address, e.g. for unicast probes.
	Target *net.UDPAddr
}

func (o Options) timeout() time.Duration {
	switch {
	case o.Timeout <= 0:
		return config.DiscoveryDefaultTimeout
	case o.Timeout < config.DiscoveryMinTimeout:
		return config.DiscoveryMinTimeout
	}
	return o.Timeout
}

func (o Options) target() *net.UDPAddr {
	if o.Target != nil {
		return o.Target
	}
	return &net.UDPAddr{IP: net.IPv4bcast, Port: config.DefaultDiscoveryPort}
}

// Discover broadcasts one probe and collects replies until the timeout.
// Results are unique by host and sorted. No replies is not an error.
func Discover(ctx context.Context, opts Options) ([]model.DiscoveredRobot, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("bind discovery socket: %w", err)
	}
	defer conn.Close()

	target := opts.target()
	if _, err := conn.WriteToUDP([]byte(config.DiscoveryMagic), target); err != nil {
		return nil, fmt.Errorf("send discovery probe to %s: %w", target, err)
	}

	deadline := time.Now().Add(opts.timeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	found := make(map[string]model.DiscoveredRobot)
	buf := make([]byte, config.DiscoveryMaxMessageSize)
	for {
		now := time.Now()
		if !now.Before(deadline) || ctx.Err() != nil {
			break
		}

		readDeadline := now.Add(config.DiscoveryReadPoll)
		if readDeadline.After(deadline) {
			readDeadline = deadline
		}
		conn.SetReadDeadline(readDeadline)

		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			log.Debug().Err(err).Msg("discovery read error")
			continue
		}

		var robot model.DiscoveredRobot
		if err := json.Unmarshal(buf[:n], &robot); err != nil {
			log.Debug().Err(err).Str("peer", addr.String()).Msg("ignoring malformed discovery reply")
			continue
		}
		robot.Host = addr.IP.String()
		if _, dup := found[robot.Host]; dup {
			continue
		}
		found[robot.Host] = robot
	}

	robots := make([]model.DiscoveredRobot, 0, len(found))
	for _, robot := range found {
		robots = append(robots, robot)
	}
	sort.Slice(robots, func(i, j int) bool { return robots[i].Host < robots[j].Host })
	return robots, nil
}
