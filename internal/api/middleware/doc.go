// Package middleware provides the HTTP middleware of the inspection API.
//
// Middleware stack includes:
//   - CORS: loopback origins plus an explicit allow list
//   - RateLimit: per-IP token bucket rate limiting with idle client eviction
//   - GlobalRateLimit: one bucket shared by every client
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
