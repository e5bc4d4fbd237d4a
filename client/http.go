package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"lattice/fault"
)

// httpGet performs a GET request and decodes the JSON response.
func httpGet(url string, result any) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("GET %s:\n%w", url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return decodeFault(resp)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// httpPostJSON performs a POST request with JSON body and decodes the JSON response.
func httpPostJSON(url string, body any, result any) error {
	jsonBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body:\n%w", err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(jsonBytes))
	if err != nil {
		return fmt.Errorf("POST %s:\n%w", url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return decodeFault(resp)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// decodeFault rebuilds the node's classified error from an error response.
// The node sends {error, kind} with the bare reason; reconstructing the
// fault here means remote rejections carry the same kind and message a
// local engine would have returned. Responses without a recognized kind
// degrade to a plain status error.
func decodeFault(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	switch kind := fault.Kind(body.Kind); kind {
	case fault.InvalidParam, fault.ValidationFailed, fault.CompositionFailed:
		return &fault.Error{Kind: kind, Msg: body.Error}
	}

	return fmt.Errorf("status %d: %s", resp.StatusCode, body.Error)
}
