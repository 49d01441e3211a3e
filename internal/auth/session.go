package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Session is a short-lived login on a session-based network, valid for one run.
type Session struct {
	AccessJWT string
	DID       string
	Handle    string
}

// SessionLoginError is returned when the service answers the login without a usable session.
// Code is set when the body held an XRPC error object. Malformed marks a 2xx whose body could
// not be read as a session.
type SessionLoginError struct {
	Status    int
	Code      string
	Message   string
	Malformed bool
}

func (e *SessionLoginError) Error() string {
	switch {
	case e.Malformed:
		return fmt.Sprintf("session login: malformed response (status %d): %s", e.Status, e.Message)
	case e.Code != "":
		return fmt.Sprintf("session login rejected (status %d): %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("session login rejected (status %d): %s", e.Status, e.Message)
}

// CreateSession exchanges identifier and app password for a session token and account DID.
func CreateSession(ctx context.Context, client *http.Client, creds SessionCredentials) (Session, error) {
	if client == nil {
		client = http.DefaultClient
	}
	payload, _ := json.Marshal(map[string]string{
		"identifier": creds.Identifier,
		"password":   creds.Password,
	})
	endpoint := strings.TrimRight(creds.Service, "/") + "/xrpc/com.atproto.server.createSession"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Session{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return Session{}, err
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	_ = res.Body.Close()

	var parsed struct {
		AccessJWT string `json:"accessJwt"`
		DID       string `json:"did"`
		Handle    string `json:"handle"`
		Error     string `json:"error"`
		Message   string `json:"message"`
	}
	jsonErr := json.Unmarshal(body, &parsed)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		e := &SessionLoginError{Status: res.StatusCode, Message: strings.TrimSpace(string(body))}
		if jsonErr == nil && parsed.Error != "" {
			e.Code, e.Message = parsed.Error, parsed.Message
		}
		if e.Message == "" {
			e.Message = http.StatusText(res.StatusCode)
		}
		if len(e.Message) > 300 {
			e.Message = e.Message[:300] + "…"
		}
		return Session{}, e
	}
	if jsonErr != nil {
		return Session{}, &SessionLoginError{Status: res.StatusCode, Malformed: true, Message: jsonErr.Error()}
	}
	if parsed.AccessJWT == "" || parsed.DID == "" {
		return Session{}, &SessionLoginError{Status: res.StatusCode, Malformed: true, Message: "missing accessJwt or did"}
	}
	return Session{AccessJWT: parsed.AccessJWT, DID: parsed.DID, Handle: parsed.Handle}, nil
}
