package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/umar/staychat/internal/models"
)

func ListRooms(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}
		roomList, err := d.Rooms.ListForUser(r.Context(), user.ID)
		if err != nil {
			writeDomainError(w, r, err, "list rooms")
			return
		}
		out, err := d.details(r.Context(), user.ID, roomList)
		if err != nil {
			writeDomainError(w, r, err, "load room details")
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// CreateOrFindRoom answers 201 when the room was created by this request and
// 200 when the pair already had one.
func CreateOrFindRoom(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}

		var req struct {
			OtherUserID string `json:"other_user_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.OtherUserID == "" {
			writeError(w, http.StatusBadRequest, "other_user_id is required")
			return
		}

		room, created, err := d.Rooms.FindOrCreate(r.Context(), user.ID, req.OtherUserID)
		if err != nil {
			writeDomainError(w, r, err, "create room")
			return
		}
		out, err := d.details(r.Context(), user.ID, []models.Room{*room})
		if err != nil {
			writeDomainError(w, r, err, "load room details")
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
			slog.Info("room created", "room_id", room.ID, "user_id", user.ID, "other_user_id", req.OtherUserID)
		}
		writeJSON(w, status, out[0])
	}
}

func GetRoom(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}
		room, err := d.Rooms.Authorize(r.Context(), mux.Vars(r)["id"], user.ID)
		if err != nil {
			writeDomainError(w, r, err, "get room")
			return
		}
		out, err := d.details(r.Context(), user.ID, []models.Room{*room})
		if err != nil {
			writeDomainError(w, r, err, "load room details")
			return
		}
		writeJSON(w, http.StatusOK, out[0])
	}
}

// DeleteRoom removes the room with its history and evicts live subscribers.
func DeleteRoom(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}
		room, err := d.Rooms.Delete(r.Context(), mux.Vars(r)["id"], user.ID)
		if err != nil {
			writeDomainError(w, r, err, "delete room")
			return
		}
		d.Gateway.CloseRoom(room.ID)
		slog.Info("room deleted", "room_id", room.ID, "user_id", user.ID)
		w.WriteHeader(http.StatusNoContent)
	}
}
