package bandel

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// ProblemDetails is the RFC 7807 style structured error body shape. A body is
// treated as problem details only when type, title and a numeric status are
// all present; extension members stay available through RequestError.RawData.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// InterpretError normalizes a non-2xx response body into a RequestError.
// Heterogeneous error shapes resolve by first match:
//
//  1. Structured problem details (string type, string title, numeric status):
//     message is detail when present, else title; the full structure is kept.
//  2. A legacy object with a detail field: message is the stringified detail.
//  3. A plain JSON string: message is that string.
//  4. Anything else that parsed: default "HTTP {status}: {statusText}" with
//     the parsed body preserved as RawData.
//
// A body that does not parse at all falls back to the default message with no
// RawData. For 429 responses a parseable Retry-After header is merged into
// RawData as retry_after.
func InterpretError(status int, header http.Header, body []byte) *RequestError {
	reqErr := &RequestError{
		Kind:       KindHTTP,
		StatusCode: status,
		Message:    defaultStatusMessage(status),
	}

	var parsed any
	if err := json.Unmarshal(body, &parsed); err == nil {
		reqErr.RawData = parsed
		switch v := parsed.(type) {
		case map[string]any:
			if problem, ok := problemFromBody(v); ok {
				reqErr.Problem = problem
				if problem.Detail != "" {
					reqErr.Message = problem.Detail
				} else {
					reqErr.Message = problem.Title
				}
			} else if detail, ok := v["detail"]; ok {
				reqErr.Message = stringifyDetail(detail)
			}
		case string:
			reqErr.Message = v
		}
	}

	if status == http.StatusTooManyRequests {
		if retryAfter, ok := parseIntHeader(header, "Retry-After"); ok {
			merged, isObject := reqErr.RawData.(map[string]any)
			if !isObject {
				merged = make(map[string]any)
			}
			merged["retry_after"] = retryAfter
			reqErr.RawData = merged
		}
	}

	return reqErr
}

// DecodePayload handles the success path of a completed 2xx exchange. A 204
// yields no payload without touching the body. Any other 2xx decodes the body
// into out; a decode failure is itself a normalized error carrying the
// original success status, because a successful exchange with an unparseable
// body is still an error to the caller.
func DecodePayload(status int, body []byte, out any) error {
	if status == http.StatusNoContent || out == nil {
		return nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &RequestError{
			Kind:       KindParse,
			StatusCode: status,
			Message:    "failed to parse response body",
			Cause:      err,
		}
	}
	return nil
}

func problemFromBody(body map[string]any) (*ProblemDetails, bool) {
	typ, typOK := body["type"].(string)
	title, titleOK := body["title"].(string)
	status, statusOK := body["status"].(float64)
	if !typOK || !titleOK || !statusOK {
		return nil, false
	}

	problem := &ProblemDetails{
		Type:   typ,
		Title:  title,
		Status: int(status),
	}
	if detail, ok := body["detail"].(string); ok {
		problem.Detail = detail
	}
	if instance, ok := body["instance"].(string); ok {
		problem.Instance = instance
	}
	return problem, true
}

func stringifyDetail(detail any) string {
	if s, ok := detail.(string); ok {
		return s
	}
	encoded, err := json.Marshal(detail)
	if err != nil {
		return fmt.Sprintf("%v", detail)
	}
	return string(encoded)
}

func defaultStatusMessage(status int) string {
	return fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status))
}

func parseIntHeader(header http.Header, name string) (int, bool) {
	raw := strings.TrimSpace(header.Get(name))
	if raw == "" {
		return 0, false
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}
