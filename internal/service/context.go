package service

import "context"

type contextKey string

const remoteIPContextKey contextKey = "remote_ip"

// WithRemoteIP records the peer address of the current request.
func WithRemoteIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, remoteIPContextKey, ip)
}

func RemoteIPFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(remoteIPContextKey).(string); ok {
		return ip
	}
	return ""
}
