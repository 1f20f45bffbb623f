package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ActionKind is the semantic category of a classified action.
type ActionKind string

const (
	ActionNativeTransfer ActionKind = "native_transfer"
	ActionTokenTransfer  ActionKind = "token_transfer"
	ActionTokenApproval  ActionKind = "token_approval"
	ActionContractCall   ActionKind = "contract_call"
	ActionContractDeploy ActionKind = "contract_deploy"
)

// Action is a semantically classified event derived from one trace.
type Action struct {
	TraceID      common.Hash       `json:"traceId"`
	Kind         ActionKind        `json:"kind"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	Failed       bool              `json:"failed,omitempty"`
	ClassifiedAt time.Time         `json:"classifiedAt"`
}

// TraceWithActions joins a trace with its classified actions for API responses.
type TraceWithActions struct {
	Trace
	Actions []Action `json:"actions"`
}
