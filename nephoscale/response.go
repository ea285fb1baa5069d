package nephoscale

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
)

// validResponseCodes is the whitelist of statuses the API uses for
// successful calls, both as HTTP status and in the envelope's
// "response" field.
var validResponseCodes = []int{
	http.StatusOK,
	http.StatusCreated,
	http.StatusAccepted,
	http.StatusNoContent,
}

// envelope is the uniform response wrapper around every API payload.
type envelope struct {
	Data     json.RawMessage `json:"data"`
	Response int             `json:"response"`
}

// ok reports whether the envelope-level response code is in the
// whitelist. Mutating calls derive their boolean result from this.
func (e *envelope) ok() bool {
	return isValidResponseCode(e.Response)
}

func isValidResponseCode(code int) bool {
	for _, valid := range validResponseCodes {
		if code == valid {
			return true
		}
	}
	return false
}

// parseResponse classifies a transport result and decodes the envelope.
// 401 and 404 map to their typed errors, any other non-whitelisted
// status becomes a RemoteError carrying the raw body.
func parseResponse(status int, body []byte) (*envelope, error) {
	if !isValidResponseCode(status) {
		switch status {
		case http.StatusUnauthorized:
			return nil, &AuthenticationError{}
		case http.StatusNotFound:
			return nil, &NotFoundError{}
		default:
			return nil, &RemoteError{StatusCode: status, Body: body}
		}
	}

	env := &envelope{}
	if len(body) == 0 {
		return env, nil
	}

	err := json.Unmarshal(body, env)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't decode response envelope")
	}

	return env, nil
}
