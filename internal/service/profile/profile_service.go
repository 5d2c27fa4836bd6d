package profile

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"imagine-chat/internal/cache"
	"imagine-chat/internal/querykey"
	"imagine-chat/internal/repository/db"
	"imagine-chat/internal/service/mutation"
	"imagine-chat/internal/service/softdelete"
	"imagine-chat/pkg/validation"
)

// ProfileService reads, updates and deletes profiles
type ProfileService struct {
	db          db.Database
	coordinator *mutation.Coordinator
	policy      *softdelete.Policy
	validator   *validation.AuthRequestValidator
}

// NewProfileService creates a new ProfileService
func NewProfileService(database db.Database, coordinator *mutation.Coordinator, policy *softdelete.Policy) *ProfileService {
	return &ProfileService{
		db:          database,
		coordinator: coordinator,
		policy:      policy,
		validator:   validation.NewAuthRequestValidator(),
	}
}

// Get returns the active profile
func (s *ProfileService) Get(ctx context.Context, id string) (*db.Profile, error) {
	return s.db.GetProfile(ctx, id)
}

// Update changes the display name, avatar URL or preferences
func (s *ProfileService) Update(ctx context.Context, id string, update db.ProfileUpdate) (*db.Profile, error) {
	return mutation.Run(ctx, s.coordinator, mutation.Mutation[*db.Profile]{
		Kind:  "update_profile",
		Locks: []string{id},
		Validate: func(context.Context) error {
			if update.DisplayName != nil {
				name := strings.TrimSpace(*update.DisplayName)
				if err := s.validator.ValidateDisplayName(name); err != nil {
					return mutation.Validation(err)
				}
				update.DisplayName = &name
			}
			if update.Preferences != nil && !json.Valid(update.Preferences) {
				return mutation.Validation(errors.New("preferences must be valid JSON"))
			}
			return nil
		},
		Remote: func(ctx context.Context) (*db.Profile, error) {
			return s.db.UpdateProfile(ctx, id, update)
		},
	})
}

// Delete soft-deletes the profile with everything it owns and drops all of
// its cached state
func (s *ProfileService) Delete(ctx context.Context, id string) error {
	var keys []querykey.Key

	_, err := mutation.Run(ctx, s.coordinator, mutation.Mutation[softdelete.Report]{
		Kind:  "delete_profile",
		Locks: []string{id},
		Keys: func(store *cache.Store) []querykey.Key {
			for _, prefix := range querykey.Owner(id) {
				keys = append(keys, store.Keys(prefix)...)
			}
			return keys
		},
		Apply: func(store *cache.Store) {
			for _, key := range keys {
				store.Remove(key)
			}
		},
		Remote: func(ctx context.Context) (softdelete.Report, error) {
			return s.policy.DeleteProfile(ctx, id)
		},
		Invalidate: func(softdelete.Report) []querykey.Key {
			return querykey.Owner(id)
		},
	})
	return err
}
