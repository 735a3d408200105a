package entity

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/refoss-bridge/internal/refoss"
)

// Registry is the entity registry Setup removes stale entities from.
type Registry interface {
	EntityID(domain, platform, uniqueID string) (string, bool)
	RemoveEntity(ctx context.Context, entityID string) error
}

// Constructor builds an entity for one key instance of a catalog item.
type Constructor func(coord Coordinator, key, attribute string, desc Description) Entity

// SetupParams collects what Setup needs for one platform of one device.
type SetupParams struct {
	// Platform is the entity domain, e.g. PlatformSensor.
	Platform string

	// RegistryPlatform is the integration the entities belong to in the
	// registry. Default: refoss.Domain
	RegistryPlatform string

	Coordinator     Coordinator
	PollCoordinator Coordinator
	Catalog         Catalog
	Registry        Registry
	New             Constructor
	Logger          Logger
}

// Setup creates the entities of a catalog for a device.
//
// Every item is matched against the device status with KeyInstances. A key
// instance whose status lacks the item's sub-key is skipped unless the item
// declares it supported. When the item's removal condition holds, the
// registry entry "<mac>-<key>-<id>" is removed instead of creating an
// entity. Nothing is created for a device that is not initialized.
func Setup(ctx context.Context, p SetupParams) ([]Entity, error) {
	if p.Coordinator == nil || p.New == nil {
		return nil, errors.New("entity setup: coordinator and constructor are required")
	}
	if p.Logger == nil {
		p.Logger = noopLogger{}
	}
	if p.RegistryPlatform == "" {
		p.RegistryPlatform = refoss.Domain
	}

	dev := p.Coordinator.Device()
	if !dev.Initialized() {
		return nil, nil
	}
	config, status := dev.Config(), dev.Status()

	var entities []Entity
	for _, item := range p.Catalog {
		desc := item.Description
		for _, key := range refoss.KeyInstances(status, desc.Key) {
			componentStatus := status.Component(key)
			if _, ok := componentStatus[desc.SubKey]; !ok && (desc.Supported == nil || !desc.Supported(componentStatus)) {
				continue
			}

			if desc.RemovalCondition != nil && desc.RemovalCondition(config, status, key) {
				uniqueID := fmt.Sprintf("%s-%s-%s", p.Coordinator.MAC(), key, item.ID)
				if err := removeEntity(ctx, p, uniqueID); err != nil {
					return nil, err
				}
				continue
			}

			coord := p.Coordinator
			if desc.UsePollingCoordinator && p.PollCoordinator != nil {
				coord = p.PollCoordinator
			}
			e := p.New(coord, key, item.ID, desc)
			e.SetLogger(p.Logger)
			entities = append(entities, e)
		}
	}
	return entities, nil
}

func removeEntity(ctx context.Context, p SetupParams, uniqueID string) error {
	if p.Registry == nil {
		return nil
	}
	entityID, ok := p.Registry.EntityID(p.Platform, p.RegistryPlatform, uniqueID)
	if !ok {
		return nil
	}
	p.Logger.Debug("Removing entity", "entity_id", entityID)
	if err := p.Registry.RemoveEntity(ctx, entityID); err != nil {
		return fmt.Errorf("removing entity %s: %w", entityID, err)
	}
	return nil
}
