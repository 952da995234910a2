package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tesla-telemetry-backend/internal/model"
)

// SaveSubscription creates or replaces a push subscription and its vehicle set.
// vehicleIDs are local vehicle ids; unknown ids are ignored.
func (s *gormStore) SaveSubscription(ctx context.Context, sub model.PushSubscription, vehicleIDs []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub.Vehicles = nil
		if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Create(&sub).Error; err != nil {
			return fmt.Errorf("upsert subscription: %w", err)
		}

		var vehicles []*model.Vehicle
		if len(vehicleIDs) > 0 {
			if err := tx.Where("id IN ?", vehicleIDs).Find(&vehicles).Error; err != nil {
				return fmt.Errorf("load subscribed vehicles: %w", err)
			}
		}
		if err := tx.Model(&sub).Association("Vehicles").Replace(&vehicles); err != nil {
			return fmt.Errorf("replace subscribed vehicles: %w", err)
		}
		return nil
	})
}

// GetSubscription returns the subscription with its vehicles, or ErrNotFound.
func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.WithContext(ctx).Preload("Vehicles").Where("endpoint = ?", endpoint).Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &sub, nil
}

// DeleteSubscription removes a subscription and its vehicle mappings. Deleting an
// unknown endpoint is not an error.
func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM subscription_vehicle_mapping WHERE push_subscription_endpoint = ?", endpoint).Error; err != nil {
			return fmt.Errorf("delete subscription mappings: %w", err)
		}
		if err := tx.Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
			return fmt.Errorf("delete subscription: %w", err)
		}
		return nil
	})
}

// SubscriptionsForVehicle lists the subscriptions that follow a local vehicle id.
func (s *gormStore) SubscriptionsForVehicle(ctx context.Context, vehicleID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := s.db.WithContext(ctx).
		Joins("JOIN subscription_vehicle_mapping svm ON svm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("svm.vehicle_id = ?", vehicleID).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("subscriptions for vehicle %s: %w", vehicleID, err)
	}
	return subs, nil
}
