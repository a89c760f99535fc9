package tier

// Matcher is the minimal tier API for read-only strategy paths.
type Matcher interface {
	Match(key string) (Entry, bool, error)
}

// Cache is the tier API the strategy engine writes through.
type Cache interface {
	Matcher
	Put(key string, e Entry) error
}

// Opener is the store API needed by the lifecycle (install/activate) code.
type Opener interface {
	Open(name string) (*Tier, error)
	Qualified(name string) string
	List() ([]string, error)
	Delete(qualified string) error
}
