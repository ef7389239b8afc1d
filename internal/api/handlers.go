package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"contact-service/internal/submission"
)

// maxBodyBytes matches the 100kb limit of common body parsers.
const maxBodyBytes = 100 << 10

// ContactResponse is the body of every POST /contact response.
type ContactResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// @Summary Liveness probe
// @Tags Health
// @Produce plain
// @Success 200 {string} string
// @Router / [get]
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "Server is running...")
}

// @Summary Submit a contact message
// @Description Stores the message and emails the operator. Any internal failure yields the same 500 body.
// @Tags Contact
// @Accept json
// @Accept x-www-form-urlencoded
// @Produce json
// @Param body body submission.Payload false "Contact message"
// @Success 200 {object} ContactResponse
// @Failure 400 {object} ContactResponse
// @Failure 500 {object} ContactResponse
// @Router /contact [post]
func (a *API) SubmitContact(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	payload, err := decodePayload(r)
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, ContactResponse{Success: false, Message: "Invalid request body"})
		return
	}

	// Submissions outlive the client connection; the per-step timeouts
	// bound them.
	out := a.Submitter.HandleSubmission(context.WithoutCancel(r.Context()), payload)
	if !out.Success {
		writeJSON(w, http.StatusInternalServerError, ContactResponse{Success: false, Message: out.Message})
		return
	}
	writeJSON(w, http.StatusOK, ContactResponse{Success: true, Message: out.Message})
}

// decodePayload reads JSON and URL-encoded bodies. Other content types, and
// an empty body, yield the empty payload.
func decodePayload(r *http.Request) (submission.Payload, error) {
	var p submission.Payload

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var raw map[string]any
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return p, err
		}
		var err error
		if p.Name, err = scalarString(raw, "name"); err != nil {
			return p, err
		}
		if p.Email, err = scalarString(raw, "email"); err != nil {
			return p, err
		}
		if p.Message, err = scalarString(raw, "message"); err != nil {
			return p, err
		}
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return p, err
		}
		p.Name = r.PostForm.Get("name")
		p.Email = r.PostForm.Get("email")
		p.Message = r.PostForm.Get("message")
	}
	return p, nil
}

// scalarString reads raw[key] as text. Numbers and booleans are kept in
// their JSON spelling, null and missing keys are empty, and objects or
// arrays are an error.
func scalarString(raw map[string]any, key string) (string, error) {
	switch v := raw[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		if v {
			return "true", nil
		}
		return "false", nil
	default:
		return "", fmt.Errorf("field %q is not a scalar", key)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
