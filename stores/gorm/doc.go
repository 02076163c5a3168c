//go:build !wasm
// +build !wasm

// Package gorm provides GORM-based implementations of the authbridge store
// interfaces. It supports any database that GORM supports (PostgreSQL,
// MySQL, SQLite, etc.) and is suitable for production deployments requiring
// relational storage.
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - identities: Canonical user records with their linked auth methods
//   - sessions: Server-side session rows for the sessions proof mode
//
// Uniqueness of username, email, phone and the provider subject columns is
// enforced by partial-by-NULL unique indexes; violations surface as
// *authbridge.ConflictError.
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
//	gormstore.AutoMigrate(db)
//	identities := gormstore.NewIdentityStore(db)
//	sessions := gormstore.NewSessionStore(db)
package gorm
