package provider

import (
	"encoding/json"
	"fmt"
)

// DecodeRequest decodes the JSON form of a SendRequest. The object's
// "kind" field selects the variant.
func DecodeRequest(data []byte) (SendRequest, error) {
	var head struct {
		Kind Kind `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}

	var req SendRequest
	var err error
	switch head.Kind {
	case KindTemplateChat:
		var r TemplateChat
		err = json.Unmarshal(data, &r)
		req = r
	case KindShortText:
		var r ShortText
		err = json.Unmarshal(data, &r)
		req = r
	case KindLongText:
		var r LongText
		err = json.Unmarshal(data, &r)
		req = r
	case KindMultimedia:
		var r Multimedia
		err = json.Unmarshal(data, &r)
		req = r
	case "":
		return nil, fmt.Errorf("decode request: kind is required")
	default:
		return nil, fmt.Errorf("decode request: unknown kind %q", head.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s request: %w", head.Kind, err)
	}
	return req, nil
}

// EncodeRequest encodes req in the form accepted by DecodeRequest.
func EncodeRequest(req SendRequest) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	kind, _ := json.Marshal(req.Kind())
	fields["kind"] = kind
	return json.Marshal(fields)
}
