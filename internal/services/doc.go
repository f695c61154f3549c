// Package services holds the shared error taxonomy used to classify
// processing failures across workers, the orchestrator, and the API.
package services
