package models

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/foxdrive/foxdrive-go/types"
)

// ParseMoveRequest decodes the JSON body of the move operation.
func ParseMoveRequest(body []byte) (*types.MoveRequest, error) {
	var req types.MoveRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid move request: %w", err)
	}
	if req.Name == "" {
		return nil, fmt.Errorf("invalid move request: missing name")
	}
	return &req, nil
}
