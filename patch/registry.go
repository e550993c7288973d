package patch

import "fmt"

// A Registry holds the patch sets for every target file. It is built once and
// never changes; accessors return copies.
type Registry struct {
	version string
	files   []string
	sets    map[string]Set
}

// NewRegistry validates the sets and returns a registry holding them, in
// order. Version names the release of the target the descriptors were made
// against, and may be empty.
func NewRegistry(version string, sets ...Set) (*Registry, error) {
	r := &Registry{
		version: version,
		sets:    make(map[string]Set, len(sets)),
	}
	for _, s := range sets {
		if s.File == "" {
			return nil, fmt.Errorf("%w: set without file name", ErrInvalidDescriptor)
		}
		if _, ok := r.sets[s.File]; ok {
			return nil, fmt.Errorf("%w: duplicate set for %q", ErrInvalidDescriptor, s.File)
		}
		if len(s.Descriptors) == 0 {
			return nil, fmt.Errorf("%w: empty set for %q", ErrInvalidDescriptor, s.File)
		}
		if err := s.check(); err != nil {
			return nil, wrapError(err, s.File)
		}
		r.files = append(r.files, s.File)
		r.sets[s.File] = s.clone()
	}
	return r, nil
}

// Version returns the target release the registry was made against.
func (r *Registry) Version() string {
	return r.version
}

// Files returns the target files, in registration order.
func (r *Registry) Files() []string {
	return append([]string(nil), r.files...)
}

// Set returns the patch set for a file.
func (r *Registry) Set(file string) (Set, bool) {
	s, ok := r.sets[file]
	if !ok {
		return Set{}, false
	}
	return s.clone(), true
}

// Sets returns every patch set, in registration order.
func (r *Registry) Sets() []Set {
	sets := make([]Set, len(r.files))
	for i, f := range r.files {
		sets[i] = r.sets[f].clone()
	}
	return sets
}
