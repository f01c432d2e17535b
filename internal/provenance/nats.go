package provenance

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is the NATS subject prefix for audit entries.
// Entries publish to "<prefix>.<session_id>".
const DefaultSubjectPrefix = "boundaryd.audit"

// NATSPublisher ships ledger entries to a NATS subject for external audit
// storage.
type NATSPublisher struct {
	conn          *nats.Conn
	subjectPrefix string
}

// NewNATSPublisher creates a publisher on the given connection.
// An empty subjectPrefix uses DefaultSubjectPrefix.
func NewNATSPublisher(conn *nats.Conn, subjectPrefix string) (*NATSPublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("nats connection is required")
	}
	if subjectPrefix == "" {
		subjectPrefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{conn: conn, subjectPrefix: subjectPrefix}, nil
}

// Publish sends one entry as JSON.
func (p *NATSPublisher) Publish(entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", p.subjectPrefix, entry.SessionID)
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publishing audit entry: %w", err)
	}
	return nil
}
