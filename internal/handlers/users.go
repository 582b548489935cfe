package handlers

import (
	"net/http"
	"strings"

	"github.com/umar/staychat/internal/models"
)

const searchLimit = 20

// SearchUsers looks up cached participant profiles by name.
func SearchUsers(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query == "" {
			writeJSON(w, http.StatusOK, []models.Participant{})
			return
		}

		found, err := d.Profiles.SearchProfiles(r.Context(), query, searchLimit+1)
		if err != nil {
			writeDomainError(w, r, err, "search users")
			return
		}
		out := make([]models.Participant, 0, len(found))
		for _, p := range found {
			if p.ID == user.ID || len(out) == searchLimit {
				continue
			}
			out = append(out, models.Participant{
				ID:           p.ID,
				Name:         p.Name,
				ProfilePhoto: p.ProfilePhoto,
				Role:         p.Role,
				Online:       d.Gateway.IsOnline(p.ID),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// Presence reports online state for each user_id query parameter.
func Presence(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids := r.URL.Query()["user_id"]
		if len(ids) == 0 {
			writeError(w, http.StatusBadRequest, "user_id is required")
			return
		}
		out := make(map[string]bool, len(ids))
		for _, id := range ids {
			out[id] = d.Gateway.IsOnline(id)
		}
		writeJSON(w, http.StatusOK, out)
	}
}
