// ABOUTME: Hand-written TOML proxy descriptor files for the CLI
// ABOUTME: A proxy file names one proxy and carries its descriptor as a TOML table

package codec

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-json"
)

// proxyFile is the on-disk shape of a hand-written proxy definition:
//
//	name = "home-ss"
//	version = 1
//
//	[proxy]
//	type = "shadowsocks-client"
//	server = "198.51.100.7"
//	port = 8388
type proxyFile struct {
	Name    string         `toml:"name"`
	Version uint16         `toml:"version"`
	Proxy   map[string]any `toml:"proxy"`
}

// ParseProxyFile parses a TOML proxy definition into a proxy record. The
// descriptor table is re-encoded canonically as JSON.
func ParseProxyFile(data []byte) (ProxyRecord, error) {
	var pf proxyFile
	if err := toml.Unmarshal(data, &pf); err != nil {
		return ProxyRecord{}, fmt.Errorf("parsing proxy file: %w", err)
	}
	if pf.Name == "" {
		return ProxyRecord{}, fmt.Errorf("proxy file: missing name")
	}
	if len(pf.Proxy) == 0 {
		return ProxyRecord{}, fmt.Errorf("proxy file %q: missing [proxy] table", pf.Name)
	}
	if pf.Version == 0 {
		pf.Version = 1
	}

	descriptor, err := json.Marshal(pf.Proxy)
	if err != nil {
		return ProxyRecord{}, fmt.Errorf("encoding proxy descriptor: %w", err)
	}
	return ProxyRecord{
		Name:         pf.Name,
		Proxy:        descriptor,
		ProxyVersion: pf.Version,
	}, nil
}
