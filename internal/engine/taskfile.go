package engine

import "gopkg.in/yaml.v3"

// marshalTask is split out so tests can assert the exact task document the
// engine will see.
func marshalTask(doc taskDocument) ([]byte, error) {
	return yaml.Marshal(doc)
}
