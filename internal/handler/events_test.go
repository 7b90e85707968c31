package handler

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sourccey/kiosk-relay/internal/model"
	"github.com/sourccey/kiosk-relay/internal/sse"
)

func TestEventsHandler_ServeHTTP(t *testing.T) {
	t.Run("streams connected event then broker events", func(t *testing.T) {
		broker := sse.NewBroker(nil)
		defer broker.Close()

		svc := new(mockKioskService)
		svc.On("PairingInfo", mock.Anything).Return(samplePairingInfo(), nil)

		srv := httptest.NewServer(NewEventsHandler(broker, svc))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

		reader := bufio.NewReader(resp.Body)
		readEvent := func() (string, string) {
			var eventType, data string
			for {
				line, err := reader.ReadString('\n')
				require.NoError(t, err)
				line = strings.TrimRight(line, "\n")
				switch {
				case strings.HasPrefix(line, "event: "):
					eventType = strings.TrimPrefix(line, "event: ")
				case strings.HasPrefix(line, "data: "):
					data = strings.TrimPrefix(line, "data: ")
				case line == "" && eventType != "":
					return eventType, data
				}
			}
		}

		eventType, data := readEvent()
		assert.Equal(t, "connected", eventType)
		assert.Contains(t, data, `"code":"042391"`)

		require.Eventually(t, func() bool { return broker.TotalClients() == 1 }, time.Second, 10*time.Millisecond)
		broker.Notify(ctx, model.EventPairingClose, map[string]string{"source": "desktop_pairing"})

		eventType, data = readEvent()
		assert.Equal(t, model.EventPairingClose, eventType)
		assert.JSONEq(t, `{"source":"desktop_pairing"}`, data)
	})
}

func TestEventsHandler_sendRawEvent(t *testing.T) {
	t.Run("writes event and data lines", func(t *testing.T) {
		handler := &EventsHandler{}
		rec := httptest.NewRecorder()

		err := handler.sendRawEvent(rec, rec, sse.Event{Type: "kiosk-pairing-open", Data: []byte(`{"source":"desktop_pairing"}`)})

		assert.NoError(t, err)
		assert.Equal(t, "event: kiosk-pairing-open\ndata: {\"source\":\"desktop_pairing\"}\n\n", rec.Body.String())
	})
}
