package transport

import (
	"encoding/json"
	"fmt"
)

// encodeCall builds a CALL frame: [2, uniqueId, action, payload].
func encodeCall(uniqueID, action string, payload interface{}) ([]byte, error) {
	frame := []interface{}{int(callMessageType), uniqueID, action, payload}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode call: %w", err)
	}
	return data, nil
}

// encodeCallResult builds a CALLRESULT frame: [3, uniqueId, payload].
func encodeCallResult(uniqueID string, payload interface{}) ([]byte, error) {
	frame := []interface{}{int(callResultMessageType), uniqueID, payload}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode call result: %w", err)
	}
	return data, nil
}

// encodeCallError builds a CALLERROR frame: [4, uniqueId, errorCode, errorDescription, errorDetails].
func encodeCallError(uniqueID string, callErr *CallError) ([]byte, error) {
	details := callErr.ErrorDetails
	if details == nil {
		details = map[string]interface{}{}
	}
	frame := []interface{}{int(callErrorMessageType), uniqueID, callErr.ErrorCode, callErr.ErrorDescription, details}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode call error: %w", err)
	}
	return data, nil
}

const (
	callMessageType       = 2
	callResultMessageType = 3
	callErrorMessageType  = 4
)

// decodedFrame is the generic shape of any parsed inbound frame.
type decodedFrame struct {
	messageType int
	uniqueID    string
	action      string
	payload     json.RawMessage
	callError   *CallError
}

// decodeFrame parses a raw inbound message into its generic frame fields
// per spec.md §4.G / §6.1, mirroring the teacher's array-based wire codec.
func decodeFrame(data []byte) (*decodedFrame, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed frame: not a JSON array: %w", err)
	}
	if len(raw) < 3 {
		return nil, fmt.Errorf("malformed frame: fewer than 3 elements")
	}

	var msgType int
	if err := json.Unmarshal(raw[0], &msgType); err != nil {
		return nil, fmt.Errorf("malformed frame: bad message type: %w", err)
	}

	var uniqueID string
	if err := json.Unmarshal(raw[1], &uniqueID); err != nil {
		return nil, fmt.Errorf("malformed frame: bad unique id: %w", err)
	}

	switch msgType {
	case callMessageType:
		if len(raw) != 4 {
			return nil, fmt.Errorf("malformed CALL frame: expected 4 elements, got %d", len(raw))
		}
		var action string
		if err := json.Unmarshal(raw[2], &action); err != nil {
			return nil, fmt.Errorf("malformed CALL frame: bad action: %w", err)
		}
		return &decodedFrame{messageType: msgType, uniqueID: uniqueID, action: action, payload: raw[3]}, nil

	case callResultMessageType:
		if len(raw) != 3 {
			return nil, fmt.Errorf("malformed CALLRESULT frame: expected 3 elements, got %d", len(raw))
		}
		return &decodedFrame{messageType: msgType, uniqueID: uniqueID, payload: raw[2]}, nil

	case callErrorMessageType:
		if len(raw) < 4 || len(raw) > 5 {
			return nil, fmt.Errorf("malformed CALLERROR frame: expected 4 or 5 elements, got %d", len(raw))
		}
		var errorCode, errorDescription string
		if err := json.Unmarshal(raw[2], &errorCode); err != nil {
			return nil, fmt.Errorf("malformed CALLERROR frame: bad error code: %w", err)
		}
		if err := json.Unmarshal(raw[3], &errorDescription); err != nil {
			return nil, fmt.Errorf("malformed CALLERROR frame: bad error description: %w", err)
		}
		details := map[string]interface{}{}
		if len(raw) == 5 {
			_ = json.Unmarshal(raw[4], &details)
		}
		return &decodedFrame{
			messageType: msgType,
			uniqueID:    uniqueID,
			callError:   &CallError{ErrorCode: errorCode, ErrorDescription: errorDescription, ErrorDetails: details},
		}, nil

	default:
		return nil, fmt.Errorf("malformed frame: unknown message type %d", msgType)
	}
}
