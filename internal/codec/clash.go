// ABOUTME: Clash-format subscription payload parser
// ABOUTME: Converts a clash YAML proxy section into canonical proxy records

package codec

import (
	"fmt"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// clashDescriptorVersion tags descriptors produced from clash documents.
const clashDescriptorVersion uint16 = 1

type clashDocument struct {
	Proxies []map[string]any `yaml:"proxies"`
}

// DecodeClash parses a clash-format subscription document into proxy
// records. Each proxy entry must carry a name and a type; the whole entry
// becomes the descriptor blob, re-encoded canonically as JSON.
func DecodeClash(payload []byte) ([]ProxyRecord, error) {
	var doc clashDocument
	if err := yaml.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decoding clash document: %w", err)
	}
	if len(doc.Proxies) == 0 {
		return nil, fmt.Errorf("clash document has no proxies section")
	}

	records := make([]ProxyRecord, 0, len(doc.Proxies))
	for i, entry := range doc.Proxies {
		name, _ := entry["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("clash proxy %d: missing name", i)
		}
		if t, _ := entry["type"].(string); t == "" {
			return nil, fmt.Errorf("clash proxy %q: missing type", name)
		}

		descriptor, err := json.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("encoding clash proxy %q: %w", name, err)
		}
		records = append(records, ProxyRecord{
			Name:         name,
			Proxy:        descriptor,
			ProxyVersion: clashDescriptorVersion,
		})
	}
	return records, nil
}
