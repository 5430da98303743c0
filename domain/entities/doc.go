// Package entities defines the core domain types of the fog bridge.
// These types double as the JSON wire format where a wire form exists.
package entities
