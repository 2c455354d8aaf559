package auth

import (
	"encoding/json"
	"net/http"
)

// Rejection — тело ответа при отказе в аутентификации или авторизации.
type Rejection struct {
	StatusCode int    `json:"statusCode"`
	Msg        string `json:"msg"`
}

// WriteRejection пишет 403 с JSON телом {"statusCode":403,"msg":...}.
func WriteRejection(w http.ResponseWriter, msg string) error {
	body, err := json.Marshal(Rejection{StatusCode: http.StatusForbidden, Msg: msg})
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	_, err = w.Write(body)
	return err
}
