// Package metadata holds the string headers stamped onto bus messages as
// events move through the runtime: tenant and team scope, correlation ids,
// retry counters. Maps are treated as immutable values; every helper returns
// a fresh map so middlewares and publishers never share state.
package metadata

// Metadata is the header set carried alongside an event on the bus.
type Metadata map[string]string

// Clone returns an independent copy. A nil receiver clones to an empty,
// usable map.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// With copies the metadata and sets one header on the copy.
func (m Metadata) With(key, value string) Metadata {
	out := make(Metadata, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[key] = value
	return out
}

// WithAll copies the metadata and overlays every entry from extra. Keys in
// extra win over existing ones.
func (m Metadata) WithAll(extra Metadata) Metadata {
	out := make(Metadata, len(m)+len(extra))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// New builds metadata from alternating key/value pairs. A trailing key
// without a value is dropped.
func New(pairs ...string) Metadata {
	out := make(Metadata, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out[pairs[i]] = pairs[i+1]
	}
	return out
}
