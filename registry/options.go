package registry

// Option configures a registration or a lookup.
type Option func(*options)

type options struct {
	namespace    string
	namespaceSet bool
	typ          string
	metadata     map[string]string
	override     bool
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) namespaceOrDefault() string {
	if o.namespaceSet {
		return o.namespace
	}
	return DefaultNamespace
}

// WithNamespace selects the namespace to register in, resolve from or list.
func WithNamespace(namespace string) Option {
	return func(o *options) {
		o.namespace = namespace
		o.namespaceSet = true
	}
}

// WithType sets the descriptive type of an entry (e.g. "resnet-fpn").
func WithType(typ string) Option {
	return func(o *options) {
		o.typ = typ
	}
}

// WithMetadata attaches one metadata pair to an entry.
func WithMetadata(key, value string) Option {
	return func(o *options) {
		if o.metadata == nil {
			o.metadata = make(map[string]string)
		}
		o.metadata[key] = value
	}
}

// WithOverride allows a registration to replace an existing entry.
func WithOverride() Option {
	return func(o *options) {
		o.override = true
	}
}
