package api

import "github.com/PrateekKumar1709/policyguard/internal/server"

// ErrorResp is the body of every non-2xx response.
type ErrorResp struct {
	Detail string           `json:"detail"`
	Kind   server.ErrorKind `json:"kind,omitempty"`
}

type ToolsResp struct {
	Tools []server.Op `json:"tools"`
}

type SetPolicyEnabledReq struct {
	Enabled *bool `json:"enabled"`
}
