package mpf

// Config customizes a Trie instance, mirroring the shape of
// database/mpt/config.go's MptConfig: a small, explicit struct rather than
// a flag or environment-parsing layer (packaging/CLI concerns are out of
// scope per spec.md §1).
type Config struct {
	// Name tags the trie's progress log lines (see Trie.EnableSaveProgress)
	// so a process driving several named tries can tell their output
	// apart. It has no effect on trie content or hashing.
	Name string

	// Hash is the hash oracle H. Defaults to Blake2b256 if zero.
	Hash HashFunc
}

// DefaultConfig is the configuration spec.md requires: blake2b-256 as the
// sole hash oracle.
var DefaultConfig = Config{
	Name: "default",
	Hash: Blake2b256,
}

func (c Config) hashFunc() HashFunc {
	if c.Hash == nil {
		return Blake2b256
	}
	return c.Hash
}
