// Package verify validates plugin (type, version, parameter) triples
// before the store persists them. The store treats plugin parameters as
// opaque bytes; this package is where their structure is actually checked.
package verify
