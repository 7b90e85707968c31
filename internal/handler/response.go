package handler

import (
	"net/http"

	"github.com/sourccey/kiosk-relay/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}
