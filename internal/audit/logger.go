package audit

import (
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"github.com/apexvest/backend/internal/store"
)

// Event is the structured record written for every administrative
// action and ledger fault.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	ActorID   string    `json:"actor_id"`
	EntityID  string    `json:"entity_id"`
	Amount    int64     `json:"amount,omitempty"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

// Logger is a write-only sink. The audit_logs insert is best-effort:
// it runs after the ledger commit and its failure is logged, never
// propagated.
type Logger struct {
	db *sql.DB
}

func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db}
}

func (l *Logger) LogAction(actorID, action, entityID, detail string) {
	l.log(Event{
		Timestamp: time.Now(),
		EventType: action,
		ActorID:   actorID,
		EntityID:  entityID,
		Status:    "SUCCESS",
		Details:   map[string]string{"detail": detail},
	})
	if l.db != nil {
		if err := store.InsertAuditLog(l.db, actorID, action, entityID, detail); err != nil {
			log.Printf("[AUDIT] failed to persist audit record: %v", err)
		}
	}
}

func (l *Logger) LogError(actorID, entityID string, err error) {
	l.log(Event{
		Timestamp: time.Now(),
		EventType: "ERROR",
		ActorID:   actorID,
		EntityID:  entityID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (l *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
