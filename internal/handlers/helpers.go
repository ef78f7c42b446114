package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gtpesantren22/wasender/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func ok(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, models.APIResponse{Status: true, Message: message})
}

func fail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.APIResponse{Status: false, Message: message})
}

func failWithError(w http.ResponseWriter, status int, message string, err error) {
	writeJSON(w, status, models.APIResponse{Status: false, Message: message, Error: err.Error()})
}

// bindParams reads the named string parameters from a JSON body, a form body
// or the query string, whichever the caller used.
func bindParams(r *http.Request, keys ...string) map[string]string {
	vals := make(map[string]string, len(keys))

	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			for _, k := range keys {
				if v, ok := body[k].(string); ok {
					vals[k] = v
				}
			}
		}
		return vals
	}

	r.ParseForm()
	for _, k := range keys {
		vals[k] = r.FormValue(k)
	}
	return vals
}
