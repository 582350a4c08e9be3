package cmd

import (
	"encoding/json"
	"fmt"
	"os"
)

// printResult writes the same {success, message, ...payload} envelope the HTTP endpoints return.
func printResult(success bool, message string, payload interface{}) error {
	body := map[string]interface{}{}
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		if err := json.Unmarshal(encoded, &body); err != nil {
			body = map[string]interface{}{"data": payload}
		}
	}
	body["success"] = success
	body["message"] = message

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(body)
}

// printFailure reports err in the result envelope and returns it so the command exits non-zero.
func printFailure(err error) error {
	_ = printResult(false, err.Error(), nil)
	return err
}
