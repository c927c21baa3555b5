package service

import (
	"context"
	"errors"
	"strings"

	"smokehouse/internal/models"
	"smokehouse/internal/storage"
)

// Profile sources accepted by ProfileService.List.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

var ErrUnknownSource = errors.New("unknown profile source")

type ProfileService struct {
	store *storage.Store
}

func NewProfileService(store *storage.Store) *ProfileService {
	return &ProfileService{store: store}
}

// List returns local or remote profile names. A failed remote listing
// still returns its labelled entry alongside the error.
func (s *ProfileService) List(ctx context.Context, source string) ([]string, error) {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "", SourceLocal:
		return s.store.ListLocal(ctx)
	case SourceRemote:
		return s.store.ListRemote(ctx)
	}
	return nil, ErrUnknownSource
}

func (s *ProfileService) Get(ctx context.Context, name string) ([]storage.StepData, error) {
	return s.store.ProfileAsStructuredData(ctx, name)
}

func (s *ProfileService) Save(ctx context.Context, name string, steps []storage.StepData) error {
	return s.store.SaveProfile(ctx, name, steps)
}

// Select makes path the active profile. A bare file name refers to
// /profiles; "github:" names the remote source.
func (s *ProfileService) Select(ctx context.Context, path string) (models.Profile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return models.Profile{}, storage.ErrBadProfileName
	}
	if !strings.HasPrefix(path, storage.RemotePrefix) && !strings.HasPrefix(path, "/") {
		path = "/profiles/" + path
	}
	return s.store.SelectProfile(ctx, path)
}
