package store

import (
	"encoding/json"
	"time"
)

func jsonUnmarshalString(s string, v any) error {
	return json.Unmarshal([]byte(s), v)
}

func nowMilli() int64 {
	return time.Now().UnixMilli()
}
