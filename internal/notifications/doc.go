// Package notifications delivers job lifecycle events via pluggable notifiers.
//
// The ntfy notifier pushes human-readable messages to the configured topic.
// The Redis publisher broadcasts JSON events on a pub/sub channel and keeps a
// capped history list so dashboards can catch up after reconnecting. Both
// degrade to a no-op when unconfigured, and workflow code depends only on the
// Service interface.
package notifications
