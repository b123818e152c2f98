// Package apiclient is the HTTP client the studyhub CLI uses to talk to the
// daemon. Responses decode into the api package DTOs and error bodies are
// surfaced as *APIError values that unwrap to the matching services
// sentinel.
package apiclient
