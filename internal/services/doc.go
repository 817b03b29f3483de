// Package services provides the centralized service registry for repaird.
//
// Registry pattern for accessing all core services (orchestrator,
// knowledge, retrieval, feedback, learning, vectorstore). Use
// NewRegistry() to create a registry with service instances, then
// accessor methods to retrieve individual services.
package services
