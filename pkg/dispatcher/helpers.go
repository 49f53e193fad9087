package dispatcher

import "encoding/json"

func marshalJSONEnvelope(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
