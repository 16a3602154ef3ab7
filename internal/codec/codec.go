// ABOUTME: Buffer codec for proxy descriptors and batch-update payloads
// ABOUTME: The canonical payload is a JSON array of versioned proxy records

package codec

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/windlass-proxy/windlass/internal/store"
)

// ProxyRecord is one proxy in a batch-update payload. Proxy is the opaque
// versioned descriptor blob; it round-trips through JSON as base64.
type ProxyRecord struct {
	Name         string `json:"name"`
	Proxy        []byte `json:"proxy"`
	ProxyVersion uint16 `json:"proxy_version"`
}

// EncodeProxyList encodes records into a batch-update payload.
func EncodeProxyList(records []ProxyRecord) ([]byte, error) {
	payload, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encoding proxy list: %w", err)
	}
	return payload, nil
}

// DecodeProxyList decodes a batch-update payload. Every record must carry
// a non-empty name; a payload that fails validation at any record is
// rejected whole.
func DecodeProxyList(payload []byte) ([]ProxyRecord, error) {
	var records []ProxyRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("decoding proxy list: %w", err)
	}
	for i, r := range records {
		if r.Name == "" {
			return nil, fmt.Errorf("proxy record %d: missing name", i)
		}
	}
	return records, nil
}

// BatchCodec adapts the JSON proxy-list payload format to the store's
// BatchDecoder boundary.
type BatchCodec struct{}

// DecodeProxies implements store.BatchDecoder.
func (BatchCodec) DecodeProxies(payload []byte) ([]store.ProxyInput, error) {
	records, err := DecodeProxyList(payload)
	if err != nil {
		return nil, err
	}
	inputs := make([]store.ProxyInput, len(records))
	for i, r := range records {
		inputs[i] = store.ProxyInput{
			Name:         r.Name,
			Proxy:        r.Proxy,
			ProxyVersion: r.ProxyVersion,
		}
	}
	return inputs, nil
}

var _ store.BatchDecoder = BatchCodec{}
