// Package entity maps device status fields onto typed sensor and switch
// entities.
//
// Entities are described declaratively: a Catalog lists, per entity id, the
// component key and status field to read, how to convert it and when the
// entity should not exist at all. Setup expands a catalog against a
// device's status, creating one entity per matching component instance and
// removing registry entries whose removal condition now holds.
//
// Every entity is bound to a coordinator and reads the device status
// snapshot the coordinator keeps current. Added registers a listener on the
// coordinator; Removed releases it.
package entity
