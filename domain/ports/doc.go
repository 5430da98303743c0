// Package ports defines the interfaces the bridge pipeline depends on.
// Infrastructure adapters (MQTT, record stores, metrics) implement them, so
// the pipeline can be exercised with in-memory fakes.
package ports
