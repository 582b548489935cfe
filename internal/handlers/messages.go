package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// GetMessages pages history oldest first. before is a message id; limit is
// clamped by the store.
func GetMessages(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}
		room, err := d.Rooms.Authorize(r.Context(), mux.Vars(r)["id"], user.ID)
		if err != nil {
			writeDomainError(w, r, err, "get messages")
			return
		}

		limit := d.HistoryLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			l, err := strconv.Atoi(s)
			if err != nil || l < 0 {
				writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			limit = l
		}

		msgs, err := d.Messages.ListForRoom(r.Context(), room.ID, limit, r.URL.Query().Get("before"))
		if err != nil {
			writeDomainError(w, r, err, "get messages")
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func MarkRead(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}
		n, err := d.Broker.MarkRead(r.Context(), user, mux.Vars(r)["id"])
		if err != nil {
			writeDomainError(w, r, err, "mark read")
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"marked": n})
	}
}
