package store

import "encoding/json"

func encodeTags(tags map[string]string) []byte {
	if len(tags) == 0 {
		return []byte("{}")
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return []byte("{}")
	}
	return raw
}

func decodeTags(raw []byte) map[string]string {
	if len(raw) == 0 {
		return map[string]string{}
	}
	var out map[string]string
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]string{}
	}
	return out
}
