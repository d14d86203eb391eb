package session

import (
	"context"
	"strings"

	"github.com/cbodonnell/gameportal/pkg/models"
	"github.com/cbodonnell/gameportal/pkg/registry"
	"github.com/cbodonnell/gameportal/pkg/store"
)

type phoneNumberDocument struct {
	UserID    string          `json:"userId"`
	Timestamp store.Timestamp `json:"timestamp"`
}

// WriteUser records the signed-in user's profile and indexes their phone
// number. An empty phoneNumber uses the verified number of the identity.
func (s *Session) WriteUser(ctx context.Context, phoneNumber string, countryCode string, displayName string) error {
	return s.Do(ctx, func() error {
		userID, err := s.identity.CurrentUserID()
		if err != nil {
			return err
		}
		if phoneNumber == "" {
			if phoneNumber, err = s.identity.PhoneNumber(); err != nil {
				return err
			}
		}
		if phoneNumber != "" {
			if phoneNumber, err = models.NormalizePhoneNumber(phoneNumber); err != nil {
				return err
			}
		}
		if err := s.registry.RegisterOnce(registry.SetupWriteUser); err != nil {
			return err
		}

		// other private fields, such as push tokens, are left untouched
		if err := store.Merge(ctx, s.store, models.PrivateFieldsPath(userID), map[string]interface{}{
			"createdOn":   store.ServerTimestamp(),
			"phoneNumber": phoneNumber,
			"countryCode": countryCode,
		}); err != nil {
			return err
		}
		if name := strings.TrimSpace(displayName); name != "" {
			if err := store.Merge(ctx, s.store, models.PublicFieldsPath(userID), map[string]interface{}{
				"displayName": name,
			}); err != nil {
				return err
			}
		}
		if phoneNumber == "" {
			return nil
		}
		return store.Write(ctx, s.store, models.PhoneNumberPath(phoneNumber), phoneNumberDocument{
			UserID:    userID,
			Timestamp: store.ServerTimestamp(),
		})
	})
}

// FetchGamesList loads the game catalog once and publishes it through
// Events.OnGamesList.
func (s *Session) FetchGamesList(ctx context.Context) ([]*models.GameSpec, error) {
	var games []*models.GameSpec
	err := s.Do(ctx, func() error {
		if _, err := s.identity.CurrentUserID(); err != nil {
			return err
		}
		if err := s.registry.RegisterOnce(registry.SetupFetchGamesList); err != nil {
			return err
		}
		if err := s.catalog.Load(ctx, s.source); err != nil {
			return err
		}
		games = s.catalog.List()
		s.logger.Info("Loaded %d games", len(games))
		if s.events.OnGamesList != nil {
			s.events.OnGamesList(games)
		}
		return nil
	})
	return games, err
}
