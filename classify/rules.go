package classify

import (
	"encoding/hex"
	"math/big"
	"time"

	"github.com/Conflux-Chain/confura-pending-cache/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// well known 4-byte method selectors
var (
	selectorTransfer     = [4]byte{0xa9, 0x05, 0x9c, 0xbb} // transfer(address,uint256)
	selectorTransferFrom = [4]byte{0x23, 0xb8, 0x72, 0xdd} // transferFrom(address,address,uint256)
	selectorApprove      = [4]byte{0x09, 0x5e, 0xa7, 0xb3} // approve(address,uint256)
)

// Classify derives the semantic actions represented by one trace.
//
// It is a pure function of the trace payload: every node of the execution
// tree yields at most one action. Classifying the same trace again yields
// the same actions modulo the classification timestamp, which makes
// re-classification on the synthetic -> completed transition idempotent.
func Classify(trace types.Trace) ([]types.Action, error) {
	if len(trace.Payload.Type) == 0 {
		return nil, errors.Errorf("trace %v has an empty execution tree", trace.ID)
	}

	now := time.Now()
	var actions []types.Action
	walkFrames(&trace.Payload, func(frame *types.CallFrame) {
		if action, ok := classifyFrame(trace.ID, frame, now); ok {
			actions = append(actions, action)
		}
	})

	return actions, nil
}

func walkFrames(frame *types.CallFrame, visit func(*types.CallFrame)) {
	visit(frame)
	for i := range frame.Children {
		walkFrames(&frame.Children[i], visit)
	}
}

func classifyFrame(traceID common.Hash, frame *types.CallFrame, now time.Time) (types.Action, bool) {
	action := types.Action{
		TraceID:      traceID,
		Failed:       frame.Failed(),
		ClassifiedAt: now,
	}

	switch {
	case frame.To == nil || frame.Type == "create" || frame.Type == "create2":
		action.Kind = types.ActionContractDeploy
		action.Attributes = map[string]string{
			"deployer": frame.From.Hex(),
		}
	case len(frame.Input) == 0:
		if frame.Value == nil || frame.Value.ToInt().Sign() == 0 {
			// a bare call moving no value carries no semantic action
			return types.Action{}, false
		}
		action.Kind = types.ActionNativeTransfer
		action.Attributes = map[string]string{
			"from":  frame.From.Hex(),
			"to":    frame.To.Hex(),
			"value": frame.Value.ToInt().String(),
		}
	case len(frame.Input) >= 4:
		action.Kind, action.Attributes = classifyCall(frame)
	default:
		// malformed input shorter than a selector, still a contract call
		action.Kind = types.ActionContractCall
		action.Attributes = map[string]string{
			"contract": frame.To.Hex(),
		}
	}

	return action, true
}

func classifyCall(frame *types.CallFrame) (types.ActionKind, map[string]string) {
	var selector [4]byte
	copy(selector[:], frame.Input[:4])

	attributes := map[string]string{
		"contract": frame.To.Hex(),
	}

	switch selector {
	case selectorTransfer:
		attributes["sender"] = frame.From.Hex()
		decodeAddressArg(frame.Input, 0, "recipient", attributes)
		decodeAmountArg(frame.Input, 1, attributes)
		return types.ActionTokenTransfer, attributes
	case selectorTransferFrom:
		decodeAddressArg(frame.Input, 0, "sender", attributes)
		decodeAddressArg(frame.Input, 1, "recipient", attributes)
		decodeAmountArg(frame.Input, 2, attributes)
		return types.ActionTokenTransfer, attributes
	case selectorApprove:
		attributes["owner"] = frame.From.Hex()
		decodeAddressArg(frame.Input, 0, "spender", attributes)
		decodeAmountArg(frame.Input, 1, attributes)
		return types.ActionTokenApproval, attributes
	default:
		attributes["method"] = "0x" + hex.EncodeToString(selector[:])
		return types.ActionContractCall, attributes
	}
}

func decodeAddressArg(input []byte, index int, name string, attributes map[string]string) {
	arg, ok := argWord(input, index)
	if ok {
		attributes[name] = common.BytesToAddress(arg).Hex()
	}
}

func decodeAmountArg(input []byte, index int, attributes map[string]string) {
	arg, ok := argWord(input, index)
	if ok {
		attributes["amount"] = new(big.Int).SetBytes(arg).String()
	}
}

// argWord returns the 32-byte ABI word of the given argument index.
func argWord(input []byte, index int) ([]byte, bool) {
	offset := 4 + index*32
	if len(input) < offset+32 {
		return nil, false
	}
	return input[offset : offset+32], true
}
