package toolexecutor

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialize renders a tool result as the single text payload carried by a
// tool message.
func Serialize(result interface{}) string {
	switch v := result.(type) {
	case nil:
		return "null"
	case string:
		return v
	case []byte:
		return string(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	case error:
		return v.Error()
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(data)
}
