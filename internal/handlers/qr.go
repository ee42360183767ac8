// internal/handlers/qr.go
package handlers

import (
	"net/http"
	"os"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/jswain/spyfall-service/internal/sanitize"
)

// handleRoomQR serves GET /room/{code}/qr: a PNG QR code encoding the join
// link for a live room. The link base comes from PUBLIC_BASE_URL so the
// image works behind a reverse proxy.
func (s *Server) handleRoomQR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "room" || parts[2] != "qr" {
		http.NotFound(w, r)
		return
	}

	code, err := sanitize.RoomCode(parts[1])
	if err != nil {
		http.Error(w, "invalid room code", http.StatusBadRequest)
		return
	}
	if _, ok := s.Registry.GetRoom(code); !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	base := os.Getenv("PUBLIC_BASE_URL")
	if base == "" {
		base = "http://" + r.Host
	}
	png, err := qrcode.Encode(strings.TrimRight(base, "/")+"/join/"+code, qrcode.Medium, 256)
	if err != nil {
		s.Logger.Errorf("qr encode for room %s: %v", code, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}
