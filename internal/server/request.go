package server

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/*.json
var schemaFS embed.FS

var (
	predictSchema = mustSchema("schema/predict.schema.json")
	batchSchema   = mustSchema("schema/batch.schema.json")
)

func mustSchema(name string) *jsonschema.Schema {
	data, err := schemaFS.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("server: missing embedded schema %s: %v", name, err))
	}
	return jsonschema.MustCompileString(name, string(data))
}

type predictRequest struct {
	Features []float64 `json:"features"`
}

type batchRequest struct {
	Samples [][]float64 `json:"samples"`
}

// requestError is a caller-fixable request problem.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) *requestError {
	return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

// decodeJSON reads body, checks it against schema and decodes it into dst.
func decodeJSON(body io.Reader, schema *jsonschema.Schema, dst any) error {
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &requestError{status: http.StatusRequestEntityTooLarge, msg: "request body too large"}
		}
		return badRequest("failed to read request body")
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return badRequest("invalid JSON")
	}
	if err := schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return badRequest("invalid request: %s", leafMessage(verr))
		}
		return badRequest("invalid request")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return badRequest("invalid request: %v", err)
	}
	return nil
}

// leafMessage returns the most specific validation failure with its location.
func leafMessage(e *jsonschema.ValidationError) string {
	for len(e.Causes) > 0 {
		e = e.Causes[0]
	}
	loc := e.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return fmt.Sprintf("%s: %s", loc, e.Message)
}
