package api

import (
	"bytes"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

const maxBodyBytes = 1 << 20

// maxStoredInt is the largest copy count or fine the INTEGER columns hold
const maxStoredInt = math.MaxInt32

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// errInvalidJSON marks a body that could not be decoded
var errInvalidJSON = errors.New("invalid json")

// writeJSON writes v with the given status code
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON decodes the request body into dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return errors.Join(errInvalidJSON, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return errInvalidJSON
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.Join(errInvalidJSON, err)
	}
	return nil
}

// flexInt accepts an integer sent either as a JSON number or as a numeric string.
// Values that are present but not integers are kept as invalid so that handlers can
// report a field-specific error instead of a generic decode failure.
type flexInt struct {
	Value   int64
	Present bool
	Valid   bool
}

// UnmarshalJSON implements json.Unmarshaler
func (f *flexInt) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*f = flexInt{}
		return nil
	}

	f.Present = true
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*f = flexInt{}
			return nil
		}
	}

	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		f.Value, f.Valid = n, true
		return nil
	}
	// 3.0 is an integer, 2.5 is not
	if v, err := strconv.ParseFloat(raw, 64); err == nil && v == math.Trunc(v) && math.Abs(v) < math.MaxInt64 {
		f.Value, f.Valid = int64(v), true
		return nil
	}
	f.Valid = false
	return nil
}

// positive reports whether the value was sent, parsed and is above zero
func (f flexInt) positive() bool {
	return f.Present && f.Valid && f.Value > 0
}

// tooLarge reports whether a parsed value does not fit the INTEGER columns
func (f flexInt) tooLarge() bool {
	return f.Valid && f.Value > maxStoredInt
}
