// internal/pkg/httpapi/decode.go
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"lensmart/internal/pkg/apperr"
)

const maxBodyBytes = 1 << 20

// DecodeStrict 解析请求体为 v：未知字段、多余内容、类型不符都视为校验错误
func DecodeStrict(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is empty")
		}
		return apperr.Validation("malformed request body: %v", err)
	}
	if dec.More() {
		return apperr.Validation("request body must contain a single JSON object")
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return apperr.Validation("request body must contain a single JSON object")
	}
	return nil
}
