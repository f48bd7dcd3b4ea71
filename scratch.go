package ecalveto

import (
	"fmt"
	"os"
	"path/filepath"
)

// Scratch is a private working directory of one process. It is removed by
// Cleanup only if it did not exist before.
type Scratch struct {
	Dir     string
	created bool
}

func NewScratch(root, label string) (*Scratch, error) {
	dir := filepath.Join(root, label)
	_, err := os.Stat(dir)
	switch {
	case err == nil:
		return &Scratch{Dir: dir}, nil
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("could not stat scratch directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create scratch directory: %w", err)
	}
	return &Scratch{Dir: dir, created: true}, nil
}

// Created reports whether the directory was made by NewScratch.
func (s *Scratch) Created() bool { return s.created }

func (s *Scratch) Cleanup() error {
	if !s.created {
		return nil
	}
	if err := os.RemoveAll(s.Dir); err != nil {
		return fmt.Errorf("could not remove scratch directory: %w", err)
	}
	s.created = false
	return nil
}
