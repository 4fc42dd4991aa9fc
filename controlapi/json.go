/*
File Name:  json.go

Grounded directly on webapi/API.go's EncodeJSON/DecodeJSON helpers.
*/

package controlapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
)

// EncodeJSON writes data as the JSON response body.
func EncodeJSON(w http.ResponseWriter, r *http.Request, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("controlapi: error writing response for %s: %v", r.URL.Path, err)
		return err
	}
	return nil
}

// DecodeJSON decodes a JSON request body, sending a 400 response on
// failure.
func DecodeJSON(w http.ResponseWriter, r *http.Request, data interface{}) error {
	if r.Body == nil {
		http.Error(w, "", http.StatusBadRequest)
		return errors.New("controlapi: empty request body")
	}
	if err := json.NewDecoder(r.Body).Decode(data); err != nil {
		http.Error(w, "", http.StatusBadRequest)
		return err
	}
	return nil
}
