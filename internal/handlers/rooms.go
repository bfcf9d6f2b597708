// internal/handlers/rooms.go
package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/jason-s-yu/filterbattle/internal/models"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

// RoomLister is satisfied by the game manager.
type RoomLister interface {
	ListRooms() []models.RoomSummary
}

// ConnCounter is satisfied by the session router.
type ConnCounter interface {
	Len() int
}

// RoomsHandler serves the room browser snapshot as JSON.
func RoomsHandler(rooms RoomLister) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(w, http.StatusOK, rooms.ListRooms())
	}
}

// RoomQRHandler generates a PNG QR code pointing at the join link for a room.
func RoomQRHandler(logger logrus.FieldLogger) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := strings.TrimSpace(ps.ByName("roomId"))
		if roomID == "" {
			http.Error(w, "missing room id", http.StatusBadRequest)
			return
		}

		link := JoinURL(requestScheme(r), r.Host, roomID)
		png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
		if err != nil {
			logger.WithField("room", roomID).Warnf("qr generation failed: %v", err)
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_, _ = w.Write(png)
	}
}

// JoinURL is the link a QR code or share button points at.
func JoinURL(scheme, host, roomID string) string {
	u := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     "/",
		RawQuery: url.Values{"room": []string{roomID}}.Encode(),
	}
	return u.String()
}

type healthResponse struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
}

func HealthHandler(rooms RoomLister, conns ConnCounter) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(w, http.StatusOK, healthResponse{
			Status:      "ok",
			Rooms:       len(rooms.ListRooms()),
			Connections: conns.Len(),
		})
	}
}

func VersionHandler(version string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("filterbattle v" + version + "\n"))
	}
}

// NewRouter registers every HTTP route of the server.
func NewRouter(ws http.Handler, rooms RoomLister, conns ConnCounter, version string, logger logrus.FieldLogger) *httprouter.Router {
	mux := httprouter.New()
	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		logger.Errorf("panic serving %s: %v", r.URL.Path, v)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}

	mux.Handler(http.MethodGet, "/ws", ws)
	mux.GET("/rooms", RoomsHandler(rooms))
	mux.GET("/rooms/:roomId/qr", RoomQRHandler(logger))
	mux.GET("/healthz", HealthHandler(rooms, conns))
	mux.GET("/version", VersionHandler(version))
	return mux
}
