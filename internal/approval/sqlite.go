package approval

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed approval store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the store at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS approvals (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		tool_call_id TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		args TEXT NOT NULL,
		description TEXT NOT NULL,
		status TEXT NOT NULL,
		edited_args TEXT,
		response_text TEXT,
		created_at TIMESTAMP NOT NULL,
		decided_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_approvals_status ON approvals(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_approvals_conversation ON approvals(conversation_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Create records a new pending approval and returns it.
func (s *SQLiteStore) Create(conversationID, toolCallID, toolName, args, description string) (*Approval, error) {
	id, _ := uuid.NewV7()
	now := time.Now()

	a := &Approval{
		ID:             id.String(),
		ConversationID: conversationID,
		ToolCallID:     toolCallID,
		ToolName:       toolName,
		Args:           args,
		Description:    description,
		Status:         StatusPending,
		CreatedAt:      now,
	}

	_, err := s.db.Exec(`
		INSERT INTO approvals (id, conversation_id, tool_call_id, tool_name, args, description, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.ConversationID, a.ToolCallID, a.ToolName, a.Args, a.Description, a.Status, a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert approval: %w", err)
	}

	return a, nil
}

// Get retrieves an approval by id.
func (s *SQLiteStore) Get(id string) (*Approval, error) {
	row := s.db.QueryRow(`
		SELECT id, conversation_id, tool_call_id, tool_name, args, description,
		       status, edited_args, response_text, created_at, decided_at
		FROM approvals WHERE id = ?
	`, id)
	return scanApproval(row)
}

// Pending returns approvals still waiting for a decision, oldest first.
func (s *SQLiteStore) Pending() ([]*Approval, error) {
	rows, err := s.db.Query(`
		SELECT id, conversation_id, tool_call_id, tool_name, args, description,
		       status, edited_args, response_text, created_at, decided_at
		FROM approvals WHERE status = ? ORDER BY created_at ASC
	`, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	var out []*Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// PendingForConversation returns the oldest pending approval for a
// conversation, or ErrNotFound if there is none.
func (s *SQLiteStore) PendingForConversation(conversationID string) (*Approval, error) {
	row := s.db.QueryRow(`
		SELECT id, conversation_id, tool_call_id, tool_name, args, description,
		       status, edited_args, response_text, created_at, decided_at
		FROM approvals
		WHERE conversation_id = ? AND status = ?
		ORDER BY created_at ASC LIMIT 1
	`, conversationID, StatusPending)
	return scanApproval(row)
}

// Decide applies a decision to a pending approval. Each approval can
// be decided exactly once.
func (s *SQLiteStore) Decide(id string, d Decision) (*Approval, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	status := map[string]string{
		DecisionAccept:   StatusAccepted,
		DecisionEdit:     StatusEdited,
		DecisionResponse: StatusAnswered,
	}[d.Kind]

	now := time.Now()
	res, err := s.db.Exec(`
		UPDATE approvals
		SET status = ?, edited_args = ?, response_text = ?, decided_at = ?
		WHERE id = ? AND status = ?
	`, status, nullable(d.EditedArgs), nullable(d.ResponseText), now, id, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("update approval: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Distinguish missing from already decided.
		if _, err := s.Get(id); err != nil {
			return nil, err
		}
		return nil, ErrAlreadyDecided
	}

	return s.Get(id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanApproval(row scanner) (*Approval, error) {
	var a Approval
	var editedArgs, responseText sql.NullString
	var decidedAt sql.NullTime
	err := row.Scan(&a.ID, &a.ConversationID, &a.ToolCallID, &a.ToolName, &a.Args,
		&a.Description, &a.Status, &editedArgs, &responseText, &a.CreatedAt, &decidedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan approval: %w", err)
	}
	a.EditedArgs = editedArgs.String
	a.ResponseText = responseText.String
	if decidedAt.Valid {
		t := decidedAt.Time
		a.DecidedAt = &t
	}
	return &a, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
