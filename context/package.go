// Package context contains helpers for carrying request-scoped values
// and deriving a structured logger from them.
package context

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
)

type contextKey int

const (
	uuidKey contextKey = iota
	componentKey
	nodeNameKey
)

// FromUUID returns a derived context with the given request UUID.
func FromUUID(ctx context.Context, uuid string) context.Context {
	return context.WithValue(ctx, uuidKey, uuid)
}

// FromComponent returns a derived context with the given component name.
func FromComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FromNodeName returns a derived context with the given server name.
func FromNodeName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, nodeNameKey, name)
}

func UUIDFromContext(ctx context.Context) (string, bool) {
	uuid, ok := ctx.Value(uuidKey).(string)
	return uuid, ok
}

func ComponentFromContext(ctx context.Context) (string, bool) {
	component, ok := ctx.Value(componentKey).(string)
	return component, ok
}

func NodeNameFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(nodeNameKey).(string)
	return name, ok
}

// LoggerFromContext returns a logrus entry annotated with whatever
// request-scoped values the context carries.
func LoggerFromContext(ctx context.Context) *logrus.Entry {
	entry := logrus.WithField("pid", os.Getpid())

	if uuid, ok := UUIDFromContext(ctx); ok {
		entry = entry.WithField("uuid", uuid)
	}

	if component, ok := ComponentFromContext(ctx); ok {
		entry = entry.WithField("component", component)
	}

	if name, ok := NodeNameFromContext(ctx); ok {
		entry = entry.WithField("node_name", name)
	}

	return entry
}
