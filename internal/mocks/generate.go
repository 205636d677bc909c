// Package mocks provides mock implementations for testing the report job system.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
// Generated files are committed so tests run without a generate step.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(job, nil)
package mocks

// Generate mock for JobRepository interface from internal/core package.
// This creates MockJobRepository with methods for all JobRepository interface methods:
// Enqueue, GetByID, Claim, TopQueued, QueuedByPriority, UpdateStatus, SetProgress, SetResult,
// SetSource, ListByStatus, ListByUserRole, List, ListVisible, FindByReportTypesAndRoleAndStatus,
// FindDependents, Stats, DeleteTerminalBefore, WithAdvisoryLock
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_repository_mock.go github.com/caseworks/report-engine/internal/core JobRepository

// Generate mock for TimesheetRepository interface from internal/core package.
// This creates MockTimesheetRepository with methods for all TimesheetRepository interface methods:
// Fetch, Count
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=timesheet_repository_mock.go github.com/caseworks/report-engine/internal/core TimesheetRepository

// Generate mocks for the masking-rule provider interfaces from internal/core package.
// This creates MockRuleSource (FetchMaskingRules), MockRuleWriter (UpdateMaskingRules) and
// MockTokenMinter (Mint) in a single file since tests usually stub them together.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=rule_source_mock.go github.com/caseworks/report-engine/internal/core RuleSource,RuleWriter,TokenMinter

// Generate mock for CacheRepository interface from internal/core package.
// This creates MockCacheRepository with methods for all CacheRepository interface methods:
// Set, Get, Delete, Exists, SetTTL, SetIfNotExists, Health
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_repository_mock.go github.com/caseworks/report-engine/internal/core CacheRepository
