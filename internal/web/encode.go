package web

import "encoding/json"

// marshalResults JSON-encodes the command result array and returns that
// encoding as a Go string. Fiber's own JSON encoding of the outer response
// object then re-escapes it, producing the double-encoded
// string-of-a-JSON-array the signature-binding contract expects.
func marshalResults(results any) (string, error) {
	arr, err := json.Marshal(results)
	if err != nil {
		return "", err
	}

	return string(arr), nil
}
