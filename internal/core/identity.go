package core

type Role string

const (
	RoleHost   Role = "host"
	RoleViewer Role = "viewer"
)

// Identity is an already-verified caller handed to the engine by the
// platform's identity boundary. The engine trusts it and only checks roles.
type Identity struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	Role   Role   `json:"role"`
}

func (i Identity) IsHost() bool {
	return i.Role == RoleHost
}
