package client

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sourccey/kiosk-relay/internal/config"
	"github.com/sourccey/kiosk-relay/internal/discovery"
	apperrors "github.com/sourccey/kiosk-relay/internal/errors"
	"github.com/sourccey/kiosk-relay/internal/model"
)

const maxResponseBytes = 64 * 1024

// Client talks to one robot's pairing service. Every call opens a fresh
// connection and carries exactly one request.
type Client struct {
	host        string
	port        int
	dialTimeout time.Duration
	ioTimeout   time.Duration
	clientName  string
}

type Option func(*Client)

func WithTimeouts(dial, ioTimeout time.Duration) Option {
	return func(c *Client) {
		c.dialTimeout = dial
		c.ioTimeout = ioTimeout
	}
}

func WithClientName(name string) Option {
	return func(c *Client) { c.clientName = name }
}

// New returns a client for host. A zero port means the default service port.
func New(host string, port int, opts ...Option) *Client {
	if port == 0 {
		port = config.DefaultServicePort
	}
	c := &Client{
		host:        host,
		port:        port,
		dialTimeout: config.ClientConnectTimeout,
		ioTimeout:   config.ClientIOTimeout,
		clientName:  config.DefaultClientName,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Discover scans the LAN for robots. It is a thin wrapper kept here so
// callers only need this package.
func Discover(ctx context.Context, timeout time.Duration) ([]model.DiscoveredRobot, error) {
	return discovery.Discover(ctx, discovery.Options{Timeout: timeout})
}

func (c *Client) Addr() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

func (c *Client) Pair(ctx context.Context, code string) (model.PairResult, error) {
	trimmed := strings.TrimSpace(code)
	resp, err := c.send(ctx, model.Request{
		Action:     model.ActionPair,
		Code:       &trimmed,
		ClientName: &c.clientName,
	})
	if err != nil {
		return model.PairResult{}, err
	}
	if resp.Token == "" {
		return model.PairResult{}, apperrors.Protocol("Pairing response did not include token", nil)
	}
	return model.PairResult{Token: resp.Token, RobotIdentity: identityOrDefault(resp)}, nil
}

func identityOrDefault(resp model.Response) model.RobotIdentity {
	id := model.RobotIdentity{
		RobotName:   resp.RobotName,
		Nickname:    resp.Nickname,
		RobotType:   resp.RobotType,
		ServicePort: resp.ServicePort,
	}
	if id.RobotName == "" {
		id.RobotName = config.DefaultRobotName
	}
	if id.Nickname == "" {
		id.Nickname = config.DefaultNickname
	}
	if id.RobotType == "" {
		id.RobotType = config.DefaultRobotType
	}
	if id.ServicePort == 0 {
		id.ServicePort = config.DefaultServicePort
	}
	return id
}

// RequestPairingModal asks the robot to show its pairing code on screen.
func (c *Client) RequestPairingModal(ctx context.Context) (model.ShowPairingResult, error) {
	resp, err := c.send(ctx, model.Request{Action: model.ActionShowPairing, ClientName: &c.clientName})
	if err != nil {
		return model.ShowPairingResult{}, err
	}
	return model.ShowPairingResult{Message: resp.Message, RobotIdentity: identityOrDefault(resp)}, nil
}

func (c *Client) Ping(ctx context.Context, token string) (string, error) {
	return c.tokenCall(ctx, model.ActionPing, token)
}

func (c *Client) StartRobot(ctx context.Context, token string) (string, error) {
	return c.tokenCall(ctx, model.ActionStartRobot, token)
}

func (c *Client) StopRobot(ctx context.Context, token string) (string, error) {
	return c.tokenCall(ctx, model.ActionStopRobot, token)
}

// RobotStatus returns "started" or "stopped".
func (c *Client) RobotStatus(ctx context.Context, token string) (string, error) {
	return c.tokenCall(ctx, model.ActionRobotStatus, token)
}

func (c *Client) SendModel(ctx context.Context, token, repoID, modelName string) (string, error) {
	resp, err := c.send(ctx, model.Request{
		Action:    model.ActionDownloadModel,
		Token:     &token,
		RepoID:    &repoID,
		ModelName: &modelName,
	})
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

func (c *Client) tokenCall(ctx context.Context, action model.Action, token string) (string, error) {
	resp, err := c.send(ctx, model.Request{Action: action, Token: &token})
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

func (c *Client) send(ctx context.Context, req model.Request) (model.Response, error) {
	line, err := model.EncodeLine(req)
	if err != nil {
		return model.Response{}, apperrors.Protocol("Failed to encode request", err)
	}

	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.Addr())
	if err != nil {
		return model.Response{}, apperrors.Transport("Failed to connect to robot service", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.ioTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return model.Response{}, apperrors.Transport("Failed to configure connection", err)
	}

	if _, err := conn.Write(line); err != nil {
		return model.Response{}, apperrors.Transport("Failed to send request", err)
	}

	raw, err := bufio.NewReader(io.LimitReader(conn, maxResponseBytes)).ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return model.Response{}, apperrors.Transport("Failed to read robot response", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return model.Response{}, apperrors.Protocol("Robot service returned empty response", nil)
	}

	resp, err := model.ParseResponse(raw)
	if err != nil {
		return model.Response{}, apperrors.Protocol("Invalid robot response", err)
	}
	if !resp.OK {
		return resp, apperrors.Rejected(resp.Message)
	}
	return resp, nil
}
