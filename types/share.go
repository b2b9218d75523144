package types

// ShareGrant is a directional, path-prefixed capability: From lets To see the
// subtree of From's home rooted at Path. An empty Path grants the whole tree.
// Grants never encode read vs. write; read is implied by existence and write
// is gated by the process-wide sharedWriteEnabled flag.
type ShareGrant struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
	Path string `yaml:"path" json:"path"`
}
