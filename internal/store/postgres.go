package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5/pgconn"

	"charitypay/internal/model"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	projectNameConstraint = "charity_projects_beneficiary_id_name_key"
)

// PostgresStore persists the same data as MemoryStore so reconciliation can
// resume after a restart.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func translate(err error, what string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == projectNameConstraint:
			return fmt.Errorf("%s: %w", what, ErrDuplicateName)
		case pgErr.Code == pgUniqueViolation:
			return fmt.Errorf("%s: %w", what, ErrDuplicateID)
		case pgErr.Code == pgForeignKeyViolation:
			return fmt.Errorf("%s: %w", what, ErrNotFound)
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (s *PostgresStore) CreateBeneficiary(ctx context.Context, b model.Beneficiary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO beneficiaries (id, inn, name, kpp, ogrn, is_branch)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, b.ID, b.INN, b.Data.Name, b.Data.KPP, b.Data.OGRN, b.Data.IsBranch)
	if err != nil {
		return translate(err, "insert beneficiary "+b.ID)
	}
	return nil
}

func (s *PostgresStore) MarkAddedToSettlement(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE beneficiaries SET added_to_settlement = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update beneficiary: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("beneficiary %s: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBeneficiary(row rowScanner) (model.Beneficiary, error) {
	var (
		b        model.Beneficiary
		ogrn     sql.NullString
		isBranch sql.NullBool
	)
	err := row.Scan(&b.ID, &b.INN, &b.Data.Name, &b.Data.KPP, &ogrn, &isBranch, &b.AddedToSettlement, &b.CreatedAt)
	if err != nil {
		return b, err
	}
	if ogrn.Valid {
		b.Data.OGRN = &ogrn.String
	}
	if isBranch.Valid {
		b.Data.IsBranch = &isBranch.Bool
	}
	b.ProjectIDs = []string{}
	return b, nil
}

const beneficiaryColumns = `id, inn, name, kpp, ogrn, is_branch, added_to_settlement, created_at`

func (s *PostgresStore) GetBeneficiary(ctx context.Context, id string) (*model.Beneficiary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+beneficiaryColumns+` FROM beneficiaries WHERE id = $1`, id)
	b, err := scanBeneficiary(row)
	if err != nil {
		return nil, translate(err, "get beneficiary "+id)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM charity_projects WHERE beneficiary_id = $1 ORDER BY created_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("query project ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pid string
		if err := rows.Scan(&pid); err != nil {
			return nil, fmt.Errorf("scan project id: %w", err)
		}
		b.ProjectIDs = append(b.ProjectIDs, pid)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return &b, nil
}

func (s *PostgresStore) ListBeneficiaries(ctx context.Context) ([]model.Beneficiary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+beneficiaryColumns+` FROM beneficiaries ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query beneficiaries: %w", err)
	}
	defer rows.Close()

	var out []model.Beneficiary
	index := map[string]int{}
	for rows.Next() {
		b, err := scanBeneficiary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan beneficiary: %w", err)
		}
		index[b.ID] = len(out)
		out = append(out, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	projects, err := s.ListCharityProjects(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		if i, ok := index[p.BeneficiaryID]; ok {
			out[i].ProjectIDs = append(out[i].ProjectIDs, p.ID)
		}
	}

	return out, nil
}

func (s *PostgresStore) ProjectNameTaken(ctx context.Context, beneficiaryID, name string) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM charity_projects WHERE beneficiary_id = $1 AND name = $2)`,
		beneficiaryID, name,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check project name: %w", err)
	}
	return taken, nil
}

// bigint converts an amount for a BIGINT column.
func bigint(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%d: %w", v, ErrAmountRange)
	}
	return int64(v), nil
}

func (s *PostgresStore) CreateCharityProject(ctx context.Context, p model.CharityProject) error {
	limit, err := bigint(p.Cap)
	if err != nil {
		return fmt.Errorf("project %s cap: %w", p.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO charity_projects (id, beneficiary_id, name, description, cap)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.BeneficiaryID, p.Name, p.Description, limit)
	if err != nil {
		return translate(err, "insert project "+p.ID)
	}
	return nil
}

const projectColumns = `id, beneficiary_id, name, description, cap, collected, created_at`

func scanProject(row rowScanner) (model.CharityProject, error) {
	var (
		p                model.CharityProject
		limit, collected int64
	)
	if err := row.Scan(&p.ID, &p.BeneficiaryID, &p.Name, &p.Description, &limit, &collected, &p.CreatedAt); err != nil {
		return p, err
	}
	p.Cap = uint64(limit)
	p.Collected = uint64(collected)
	return p, nil
}

func (s *PostgresStore) GetCharityProject(ctx context.Context, id string) (*model.CharityProject, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM charity_projects WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "get project "+id)
	}
	return &p, nil
}

func (s *PostgresStore) queryProjects(ctx context.Context, query string, args ...any) ([]model.CharityProject, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	out := []model.CharityProject{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListCharityProjects(ctx context.Context) ([]model.CharityProject, error) {
	return s.queryProjects(ctx, `SELECT `+projectColumns+` FROM charity_projects ORDER BY created_at, id`)
}

func (s *PostgresStore) ListBeneficiaryProjects(ctx context.Context, beneficiaryID string) ([]model.CharityProject, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM beneficiaries WHERE id = $1)`, beneficiaryID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check beneficiary: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("beneficiary %s: %w", beneficiaryID, ErrNotFound)
	}
	return s.queryProjects(ctx,
		`SELECT `+projectColumns+` FROM charity_projects WHERE beneficiary_id = $1 ORDER BY created_at, id`,
		beneficiaryID,
	)
}

func (s *PostgresStore) CreditProject(ctx context.Context, qrCodeID, projectID string, amount uint64) (bool, error) {
	delta, err := bigint(amount)
	if err != nil {
		return false, fmt.Errorf("credit %s: %w", qrCodeID, err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		donationProject string
		credited        bool
	)
	err = tx.QueryRowContext(ctx,
		`SELECT project_id, credited FROM pending_donations WHERE qr_code_id = $1 FOR UPDATE`,
		qrCodeID,
	).Scan(&donationProject, &credited)
	if err != nil {
		return false, translate(err, "lock donation "+qrCodeID)
	}
	if donationProject != projectID {
		return false, fmt.Errorf("donation %s, project %s: %w", qrCodeID, projectID, ErrProjectMismatch)
	}
	if credited {
		return false, nil
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE charity_projects SET collected = collected + $1 WHERE id = $2`,
		delta, projectID,
	)
	if err != nil {
		return false, fmt.Errorf("update collected: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE pending_donations
		SET credited = TRUE, state = $1, reason = '', updated_at = NOW()
		WHERE qr_code_id = $2
	`, string(model.DonationCredited), qrCodeID)
	if err != nil {
		return false, fmt.Errorf("mark donation credited: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) RecordPendingDonation(ctx context.Context, d model.PendingDonation) error {
	amount, err := bigint(d.Amount)
	if err != nil {
		return fmt.Errorf("donation %s: %w", d.QRCodeID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_donations (qr_code_id, project_id, amount, state)
		VALUES ($1, $2, $3, $4)
	`, d.QRCodeID, d.ProjectID, amount, string(model.DonationAwaitingPayment))
	if err != nil {
		return translate(err, "insert donation "+d.QRCodeID)
	}
	return nil
}

const donationColumns = `qr_code_id, project_id, amount, state, payment_id, reason, credited, created_at, updated_at`

func scanDonation(row rowScanner) (model.PendingDonation, error) {
	var (
		d      model.PendingDonation
		amount int64
		state  string
	)
	err := row.Scan(&d.QRCodeID, &d.ProjectID, &amount, &state, &d.PaymentID, &d.Reason, &d.Credited, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return d, err
	}
	d.Amount = uint64(amount)
	d.State = model.DonationState(state)
	return d, nil
}

func (s *PostgresStore) ResolvePendingDonation(ctx context.Context, qrCodeID string) (*model.PendingDonation, error) {
	d, err := scanDonation(s.db.QueryRowContext(ctx, `SELECT `+donationColumns+` FROM pending_donations WHERE qr_code_id = $1`, qrCodeID))
	if err != nil {
		return nil, translate(err, "get donation "+qrCodeID)
	}
	return &d, nil
}

func (s *PostgresStore) SetDonationState(ctx context.Context, qrCodeID string, state model.DonationState, paymentID, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_donations
		SET state = $2,
		    payment_id = CASE WHEN $3 = '' THEN payment_id ELSE $3 END,
		    reason = $4,
		    updated_at = NOW()
		WHERE qr_code_id = $1 AND state NOT IN ($5, $6)
	`, qrCodeID, string(state), paymentID, reason, string(model.DonationCredited), string(model.DonationAbandoned))
	if err != nil {
		return fmt.Errorf("update donation state: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	d, err := s.ResolvePendingDonation(ctx, qrCodeID)
	if err != nil {
		return err
	}
	return fmt.Errorf("donation %s is %s: %w", qrCodeID, d.State, ErrDonationClosed)
}

func (s *PostgresStore) ListOpenDonations(ctx context.Context) ([]model.PendingDonation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+donationColumns+`
		FROM pending_donations
		WHERE state NOT IN ($1, $2)
		ORDER BY created_at ASC
	`, string(model.DonationCredited), string(model.DonationAbandoned))
	if err != nil {
		return nil, fmt.Errorf("query open donations: %w", err)
	}
	defer rows.Close()

	var out []model.PendingDonation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan donation: %w", err)
		}
		out = append(out, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) StoreBeneficiaryDocument(ctx context.Context, d model.Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO beneficiary_documents (id, beneficiary_id, type, number, date, content_type)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, d.ID, d.BeneficiaryID, d.Type, d.Number, d.Date, d.ContentType)
	if err != nil {
		return translate(err, "insert document "+d.ID)
	}
	return nil
}

func (s *PostgresStore) ListBeneficiaryDocuments(ctx context.Context, beneficiaryID string) ([]model.Document, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM beneficiaries WHERE id = $1)`, beneficiaryID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check beneficiary: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("beneficiary %s: %w", beneficiaryID, ErrNotFound)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, beneficiary_id, type, number, date, content_type, uploaded_at
		FROM beneficiary_documents
		WHERE beneficiary_id = $1
		ORDER BY uploaded_at, id
	`, beneficiaryID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []model.Document
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(&d.ID, &d.BeneficiaryID, &d.Type, &d.Number, &d.Date, &d.ContentType, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return out, nil
}
