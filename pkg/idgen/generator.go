package idgen

import "fmt"

// Generator produces unique string identifiers.
type Generator interface {
	Generate() (string, error)
	Validate(id string) (bool, string) // (valid, reason)
}

const (
	KindULID   = "ulid"
	KindKSUID  = "ksuid"
	KindNanoID = "nanoid"
	KindCUID2  = "cuid2"
	KindUUID   = "uuid"
)

// New returns the generator named by kind. An empty kind selects ULID.
func New(kind string) (Generator, error) {
	switch kind {
	case "", KindULID:
		return NewULIDGenerator(), nil
	case KindKSUID:
		return NewKSUIDGenerator(), nil
	case KindNanoID:
		return NewNanoIDGenerator(DefaultNanoIDSize, DefaultNanoIDAlphabet)
	case KindCUID2:
		return NewCUID2Generator(DefaultCUID2Length)
	case KindUUID:
		return NewUUIDGenerator(), nil
	default:
		return nil, fmt.Errorf("unsupported id generator: %s", kind)
	}
}
