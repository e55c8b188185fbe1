package schema

import "encoding/json"

// RequestID holds a JSON-RPC request id, which may be a string, a number or
// null on the wire. The zero Value corresponds to a null id.
type RequestID struct {
	Value interface{}
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	var i interface{}
	if err := json.Unmarshal(data, &i); err != nil {
		return err
	}
	id.Value = i
	return nil
}

func (id RequestID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.Value)
}

func RequestID_FromUInt64(value uint64) RequestID {
	return RequestID{Value: value}
}

func RequestID_FromString(value string) RequestID {
	return RequestID{Value: value}
}

// String returns the JSON encoding of the id, or "nil" for a missing id.
// Used as a map key for request correlation.
func (id *RequestID) String() string {
	if id == nil || id.Value == nil {
		return "nil"
	}
	bytes, err := json.Marshal(id.Value)
	if err != nil {
		return err.Error()
	}
	return string(bytes)
}

func (id *RequestID) IsEmpty() bool {
	return id == nil || id.Value == nil
}
