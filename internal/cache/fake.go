package cache

import (
	"context"
	"time"
)

// Fake is an in-memory Cache for tests, avoiding a dependency on go-redis's
// v8-only redismock harness for code that only needs Cache's two methods.
type Fake struct {
	values map[string]string
}

// NewFake returns a ready-to-use in-memory cache.
func NewFake() *Fake {
	return &Fake{values: make(map[string]string)}
}

func (f *Fake) Get(_ context.Context, key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

func (f *Fake) Set(_ context.Context, key, value string, _ time.Duration) {
	f.values[key] = value
}
