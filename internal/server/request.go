package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// GraphQLRequest is the JSON body accepted on POST /graphql.
type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

type requestError struct {
	status  int
	message string
}

func badRequest(msg string) *requestError {
	return &requestError{status: http.StatusBadRequest, message: msg}
}

// parseRequest decodes and checks the body. Nothing that fails here reaches
// the worker pool.
func parseRequest(r *http.Request, maxBody int64) (GraphQLRequest, *requestError) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			return GraphQLRequest{}, badRequest("unsupported Content-Type")
		}
	}

	body := r.Body
	if maxBody > 0 {
		body = http.MaxBytesReader(nil, r.Body, maxBody)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return GraphQLRequest{}, &requestError{status: http.StatusRequestEntityTooLarge, message: "body too large"}
		}
		return GraphQLRequest{}, badRequest("failed to read body")
	}

	var req GraphQLRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return GraphQLRequest{}, badRequest("invalid JSON body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return GraphQLRequest{}, badRequest("missing 'query'")
	}
	if req.Variables == nil {
		req.Variables = map[string]any{}
	}
	return req, nil
}
