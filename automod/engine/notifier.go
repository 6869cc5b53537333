package engine

import (
	"context"
)

// Interface for a type that can handle sending notifications
type Notifier interface {
	SendAudit(ctx context.Context, rec *AuditRecord) error
}
