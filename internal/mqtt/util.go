package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseURL splits "mqtt://host:port", "tcp://host:port" or "host:port"
// into host and port.
func ParseURL(urlStr string, defaultPort int) (string, int) {
	urlStr = strings.TrimPrefix(urlStr, "mqtt://")
	urlStr = strings.TrimPrefix(urlStr, "tcp://")
	parts := strings.Split(urlStr, ":")
	if len(parts) == 1 {
		return parts[0], defaultPort
	}
	port := defaultPort
	fmt.Sscanf(parts[1], "%d", &port)
	return parts[0], port
}

// encodePayload sends strings and byte slices as they are and everything
// else as JSON.
func encodePayload(message interface{}) ([]byte, error) {
	switch v := message.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(v)
	}
}
