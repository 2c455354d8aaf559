package handler

import (
	"encoding/json"
	"net/http"

	"github.com/xela07ax/authgate/internal/infra/auth"
)

type MeResponse struct {
	Authenticated bool     `json:"authenticated"`
	UserID        string   `json:"user_id,omitempty"`
	Username      string   `json:"username,omitempty"`
	Authorities   []string `json:"authorities,omitempty"`
}

// Me отдаёт принципала текущего запроса; анонимный запрос получает authenticated=false.
// GET /v1/me
func Me(w http.ResponseWriter, r *http.Request) {
	resp := MeResponse{}
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		resp = MeResponse{
			Authenticated: true,
			UserID:        p.UserID,
			Username:      p.Username,
			Authorities:   p.Authorities,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
