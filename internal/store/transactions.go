package store

import (
	"database/sql"
	"time"

	"github.com/apexvest/backend/internal/models"
)

const transactionColumns = `id, user_id, recipient_id, amount, type, status, reference,
	       description, dispute, withdrawal_details, created_at, updated_at`

func scanTransaction(row *sql.Row) (*models.Transaction, error) {
	var t models.Transaction
	var reference, description sql.NullString
	err := row.Scan(
		&t.ID, &t.UserID, &t.RecipientID, &t.Amount, &t.Type, &t.Status,
		&reference, &description, &t.Dispute, &t.WithdrawalDetails,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Reference = reference.String
	t.Description = description.String
	return &t, nil
}

// GetTransaction fetches a transaction by id.
func GetTransaction(q Querier, txID string) (*models.Transaction, error) {
	return scanTransaction(q.QueryRow(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = $1`, txID))
}

// GetTransactionForUpdate fetches and row-locks a transaction so a
// concurrent approval of the same record blocks until commit.
func GetTransactionForUpdate(tx *sql.Tx, txID string) (*models.Transaction, error) {
	return scanTransaction(tx.QueryRow(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = $1
		FOR UPDATE`, txID))
}

// GetVoucherByCode fetches a voucher-create transaction by its
// redemption code.
func GetVoucherByCode(tx *sql.Tx, code string) (*models.Transaction, error) {
	return scanTransaction(tx.QueryRow(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE reference = $1 AND type = $2
		FOR UPDATE`, code, models.TxTypeVoucherCreate))
}

// InsertTransaction appends a new transaction record. Amount and type
// are never updated after this point.
func InsertTransaction(q Querier, t *models.Transaction) error {
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	_, err := q.Exec(`
		INSERT INTO transactions
		(id, user_id, recipient_id, amount, type, status, reference, description,
		 dispute, withdrawal_details, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.UserID, t.RecipientID, t.Amount, t.Type, t.Status, t.Reference,
		t.Description, t.Dispute, t.WithdrawalDetails, t.CreatedAt, t.UpdatedAt)
	return err
}

// UpdateTransactionStatus mutates only the status column.
func UpdateTransactionStatus(q Querier, txID, status string) error {
	_, err := q.Exec(`
		UPDATE transactions
		SET status = $1, updated_at = $2
		WHERE id = $3`,
		status, time.Now(), txID)
	return err
}

// UpdateTransactionDispute rewrites the dispute sub-record.
func UpdateTransactionDispute(q Querier, txID string, dispute *models.Dispute) error {
	_, err := q.Exec(`
		UPDATE transactions
		SET dispute = $1, updated_at = $2
		WHERE id = $3`,
		dispute, time.Now(), txID)
	return err
}

// ListTransactions returns the most recent transactions for a user.
func ListTransactions(q Querier, userID string, limit int) ([]models.Transaction, error) {
	rows, err := q.Query(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = $1 OR recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		var reference, description sql.NullString
		err := rows.Scan(
			&t.ID, &t.UserID, &t.RecipientID, &t.Amount, &t.Type, &t.Status,
			&reference, &description, &t.Dispute, &t.WithdrawalDetails,
			&t.CreatedAt, &t.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		t.Reference = reference.String
		t.Description = description.String
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}
