package service

import "context"

// Notifier delivers UI events to the local kiosk shell.
type Notifier interface {
	Notify(ctx context.Context, event string, payload any)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, any) {}

// SourcePayload is the body of pairing open/close events.
type SourcePayload struct {
	Source string `json:"source"`
}
