package socialpublish

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/PortNumber53/quote-autopost/internal/models"
)

// ErrorExtractor pulls a human-readable message out of a structured error payload.
// ok=false means the body carries no recognizable error object.
type ErrorExtractor func(body []byte) (msg string, ok bool)

// Do sends req and classifies the outcome:
//   - request failed before a response → KindNetwork
//   - body holds a structured error object (any status) → KindAPI
//   - non-2xx without a parseable error → KindTransport
//
// On success the raw body is returned.
func Do(client *http.Client, p models.Platform, op string, req *http.Request, extract ErrorExtractor) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, &Error{Platform: p, Kind: KindNetwork, Op: op, Message: err.Error(), Err: err}
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	_ = res.Body.Close()

	if extract != nil {
		if msg, ok := extract(body); ok {
			return body, &Error{Platform: p, Kind: KindAPI, Op: op, Status: res.StatusCode, Message: truncate(msg, 400)}
		}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(res.StatusCode)
		}
		return body, &Error{Platform: p, Kind: KindTransport, Op: op, Status: res.StatusCode, Message: truncate(msg, 300)}
	}
	return body, nil
}

// GraphError reads the Facebook/Instagram/Threads {"error":{"message":...}} shape.
func GraphError(body []byte) (string, bool) {
	var obj struct {
		Error *struct {
			Message   string `json:"message"`
			Type      string `json:"type"`
			Code      int    `json:"code"`
			UserTitle string `json:"error_user_title"`
			UserMsg   string `json:"error_user_msg"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &obj) != nil || obj.Error == nil {
		return "", false
	}
	msg := obj.Error.Message
	if obj.Error.UserMsg != "" {
		msg += " (" + obj.Error.UserMsg + ")"
	}
	if msg == "" {
		msg = obj.Error.Type
	}
	return msg, msg != ""
}

// XError reads X API v2 problem documents and v1.1 {"errors":[...]} payloads.
func XError(body []byte) (string, bool) {
	var obj struct {
		Errors []struct {
			Message string `json:"message"`
			Detail  string `json:"detail"`
		} `json:"errors"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(body, &obj) != nil {
		return "", false
	}
	msgs := make([]string, 0, len(obj.Errors)+1)
	for _, e := range obj.Errors {
		switch {
		case e.Message != "":
			msgs = append(msgs, e.Message)
		case e.Detail != "":
			msgs = append(msgs, e.Detail)
		}
	}
	if obj.Detail != "" {
		msgs = append(msgs, obj.Detail)
	} else if obj.Title != "" {
		msgs = append(msgs, obj.Title)
	}
	if len(msgs) == 0 && obj.Error != "" {
		msgs = append(msgs, obj.Error)
	}
	if len(msgs) == 0 {
		return "", false
	}
	return strings.Join(msgs, "; "), true
}

// XRPCError reads the AT Protocol {"error":"Name","message":"..."} shape.
func XRPCError(body []byte) (string, bool) {
	var obj struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &obj) != nil || obj.Error == "" {
		return "", false
	}
	if obj.Message == "" {
		return obj.Error, true
	}
	return obj.Error + ": " + obj.Message, true
}

// PinterestError reads the {"code":N,"message":"..."} shape.
func PinterestError(body []byte) (string, bool) {
	var obj struct {
		Code    *int   `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &obj) != nil || obj.Code == nil || obj.Message == "" {
		return "", false
	}
	return obj.Message, true
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
