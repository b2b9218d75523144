package types

// MoveRequest is the JSON body of the move operation. Both paths are virtual
// paths, so an accepted share can be moved into the caller's own tree.
type MoveRequest struct {
	FromPath string `json:"fromPath"`
	Name     string `json:"name"`
	ToPath   string `json:"toPath"`
}
