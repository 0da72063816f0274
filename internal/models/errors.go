package models

import "errors"

// Domain errors shared across services and mapped onto HTTP statuses by the
// handlers
var (
	ErrFeedNotFound    = errors.New("feed not found")
	ErrCompanyNotFound = errors.New("company not found")
	ErrJobNotFound     = errors.New("job not found")
	ErrSourceNotFound  = errors.New("source not found")
	ErrIconNotFound    = errors.New("icon not found")

	// ErrToggleForbidden rejects enabling a feed while its company is disabled
	ErrToggleForbidden = errors.New("toggle not allowed")

	// ErrJobAlreadyRunning rejects a job whose named lock is held elsewhere
	ErrJobAlreadyRunning = errors.New("job already running")

	// ErrRepositorySync wraps git failures during catalog synchronization
	ErrRepositorySync = errors.New("repository sync failed")

	// ErrCatalogParse wraps malformed catalog files
	ErrCatalogParse = errors.New("catalog parse failed")

	// ErrQueuePublish marks a job whose scrape requests could not be enqueued
	ErrQueuePublish = errors.New("queue publish failed")

	// ErrInvalidCredentials rejects worker token requests with a bad id or secret
	ErrInvalidCredentials = errors.New("invalid worker credentials")
)
