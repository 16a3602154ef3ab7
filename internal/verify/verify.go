// ABOUTME: Plugin verifier gating plugin creation and update in the store
// ABOUTME: Knows the plugin type registry, supported versions and required parameter keys

package verify

import (
	"fmt"

	"github.com/goccy/go-json"
)

// pluginSpec describes one known plugin type.
type pluginSpec struct {
	// maxVersion is the highest supported descriptor version.
	maxVersion uint16
	// requiredKeys must all be present in the parameter object.
	requiredKeys []string
	// allowEmptyParam permits an empty parameter blob.
	allowEmptyParam bool
}

// registry lists every plugin type the runtime can instantiate.
var registry = map[string]pluginSpec{
	"reject":            {maxVersion: 0, allowEmptyParam: true},
	"null":              {maxVersion: 0, allowEmptyParam: true},
	"ip-stack":          {maxVersion: 0, requiredKeys: []string{"flow", "tun"}},
	"socket-listener":   {maxVersion: 0, requiredKeys: []string{"listen", "next"}},
	"vpn-tun":           {maxVersion: 0, requiredKeys: []string{"ipv4"}},
	"host-resolver":     {maxVersion: 0, requiredKeys: []string{"udp", "tcp"}},
	"fake-ip":           {maxVersion: 0, requiredKeys: []string{"prefix_v4"}},
	"system-resolver":   {maxVersion: 0, allowEmptyParam: true},
	"switch":            {maxVersion: 0, requiredKeys: []string{"choices"}},
	"dns-server":        {maxVersion: 0, requiredKeys: []string{"resolver"}},
	"socks5-server":     {maxVersion: 0, requiredKeys: []string{"next"}},
	"http-obfs-server":  {maxVersion: 0, requiredKeys: []string{"next"}},
	"resolve-dest":      {maxVersion: 0, requiredKeys: []string{"resolver", "next"}},
	"simple-dispatcher": {maxVersion: 0, requiredKeys: []string{"rules", "fallback"}},
	"forward":           {maxVersion: 0, requiredKeys: []string{"outbound"}},
	"dyn-outbound":      {maxVersion: 0, requiredKeys: []string{"tcp_next", "udp_next"}},
	"shadowsocks-client": {
		maxVersion:   0,
		requiredKeys: []string{"method", "password", "tcp_next"},
	},
	"socks5-client":     {maxVersion: 0, requiredKeys: []string{"tcp_next"}},
	"http-proxy-client": {maxVersion: 0, requiredKeys: []string{"tcp_next"}},
	"tls-client":        {maxVersion: 0, requiredKeys: []string{"next"}},
	"trojan-client":     {maxVersion: 0, requiredKeys: []string{"password", "tls_next"}},
	"http-obfs-client":  {maxVersion: 0, requiredKeys: []string{"host", "path", "next"}},
	"tls-obfs-client":   {maxVersion: 0, requiredKeys: []string{"host", "next"}},
	"redirect":          {maxVersion: 0, requiredKeys: []string{"dest", "tcp_next"}},
	"socket":            {maxVersion: 0, allowEmptyParam: true},
	"netif":             {maxVersion: 0, requiredKeys: []string{"family_preference"}},
}

// Registry validates plugin (type, version, param) triples against the
// known plugin set. It implements the store's PluginVerifier boundary.
type Registry struct{}

// Default returns the verifier for the built-in plugin set.
func Default() Registry {
	return Registry{}
}

// VerifyPlugin rejects unknown plugin types, unsupported versions and
// malformed parameter blobs.
func (Registry) VerifyPlugin(pluginType string, pluginVersion uint16, param []byte) error {
	spec, ok := registry[pluginType]
	if !ok {
		return fmt.Errorf("unknown plugin type %q", pluginType)
	}
	if pluginVersion > spec.maxVersion {
		return fmt.Errorf("plugin %q: version %d not supported (max %d)",
			pluginType, pluginVersion, spec.maxVersion)
	}

	if len(param) == 0 {
		if spec.allowEmptyParam {
			return nil
		}
		return fmt.Errorf("plugin %q: missing parameter", pluginType)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(param, &fields); err != nil {
		return fmt.Errorf("plugin %q: parameter is not an object: %w", pluginType, err)
	}
	for _, key := range spec.requiredKeys {
		if _, ok := fields[key]; !ok {
			return fmt.Errorf("plugin %q: parameter missing field %q", pluginType, key)
		}
	}
	return nil
}

// KnownPluginTypes returns the plugin type identifiers the verifier
// accepts, for diagnostics and CLI help.
func KnownPluginTypes() []string {
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	return types
}
