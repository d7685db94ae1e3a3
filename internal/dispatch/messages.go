package dispatch

import "encoding/json"

// request is satisfied by every wire request type; the envelope fields are
// validated once at the channel boundary so handler bodies never guess at
// missing keys.
type request interface {
	Envelope() (messageID, routingKey string)
}

// decodeRequest unmarshals one message body and validates its envelope.
func decodeRequest(body []byte, v request) error {
	if err := json.Unmarshal(body, v); err != nil {
		return errMalformed("invalid JSON body: " + err.Error())
	}
	id, key := v.Envelope()
	if id == "" {
		return errMalformed("message_id is required")
	}
	if key == "" {
		return errMalformed("routing_key is required")
	}
	return nil
}
