package worker

import (
	"context"
	"encoding/json"
	"fmt"
)

// HelloWorld is a trivial general-pool job used to smoke-test a deployment.
func HelloWorld(_ context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var p struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return json.Marshal("Hello " + p.Msg)
}
