package patient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/ehr/mockserver/internal/platform/db"
	"github.com/ehr/mockserver/internal/platform/sqlquery"
)

type repoSQL struct {
	store *db.Store
}

func NewRepo(store *db.Store) Repository {
	return &repoSQL{store: store}
}

// recordColumns is the column order shared by insert, update and scan.
var recordColumns = []string{
	"patient_key", "display_id", "first_name", "last_name", "date_of_birth",
	"gender", "phone", "email", "address",
	"room_number", "bed_number", "admission_date", "discharge_date", "primary_physician",
	"diagnosis_codes", "payer_type", "insurance", "status", "is_pinned",
	"team", "team_name", "agency", "last_order",
	"created_at", "created_by", "updated_at", "updated_by",
}

var recordCols = strings.Join(recordColumns, ", ")

func (r *repoSQL) ph(n int) string {
	return r.store.Dialect.Placeholder(n)
}

func (r *repoSQL) Create(ctx context.Context, rec *Record) error {
	args, err := recordArgs(rec)
	if err != nil {
		return fmt.Errorf("patient create: %w", err)
	}

	tx, err := r.store.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("patient create: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var used int
	err = tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT (SELECT COUNT(*) FROM patients WHERE patient_key = %s) + (SELECT COUNT(*) FROM patient_key_tombstones WHERE patient_key = %s)`,
		r.ph(1), r.ph(2)), rec.Key, rec.Key).Scan(&used)
	if err != nil {
		return fmt.Errorf("patient create: %w", err)
	}
	if used > 0 {
		return ErrDuplicateKey
	}

	phs := make([]string, len(recordColumns))
	for i := range phs {
		phs[i] = r.ph(i + 1)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO patients (`+recordCols+`) VALUES (`+strings.Join(phs, ", ")+`)`, args...); err != nil {
		return fmt.Errorf("patient create: %w", err)
	}
	return tx.Commit()
}

func (r *repoSQL) Get(ctx context.Context, key string) (*Record, error) {
	rec, err := scanRecord(r.store.DB.QueryRowContext(ctx,
		`SELECT `+recordCols+` FROM patients WHERE patient_key = `+r.ph(1), key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("patient get: %w", err)
	}
	return rec, nil
}

func (r *repoSQL) FindByIdentity(ctx context.Context, firstName, lastName, dateOfBirth string) (*Record, error) {
	q := sqlquery.New(r.store.Dialect, "patients", recordCols)
	q.Add("first_name = %s AND last_name = %s AND date_of_birth = %s", firstName, lastName, dateOfBirth)
	q.OrderBy(keyColumn, false, "")
	rec, err := scanRecord(r.store.DB.QueryRowContext(ctx, q.DataSQL(1, 0), q.DataArgs(1, 0)...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("patient find by identity: %w", err)
	}
	return rec, nil
}

// Search runs the count and the page query with the same predicate.
func (r *repoSQL) Search(ctx context.Context, p Plan) ([]*Record, int, error) {
	q := sqlquery.New(r.store.Dialect, "patients", recordCols)
	p.Apply(q)

	var total int
	if err := r.store.DB.QueryRowContext(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("patient count: %w", err)
	}

	limit, offset := p.Page.PageSize, p.Page.Offset()
	if limit <= 0 {
		offset = 0
	}
	rows, err := r.store.DB.QueryContext(ctx, q.DataSQL(limit, offset), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("patient search: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("patient search: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("patient search: %w", err)
	}
	return records, total, nil
}

func (r *repoSQL) Update(ctx context.Context, rec *Record) error {
	args, err := recordArgs(rec)
	if err != nil {
		return fmt.Errorf("patient update: %w", err)
	}
	// patient_key and the creation stamps are never rewritten.
	sets := make([]string, 0, len(recordColumns))
	vals := make([]interface{}, 0, len(recordColumns))
	for i, col := range recordColumns {
		switch col {
		case "patient_key", "created_at", "created_by":
			continue
		}
		vals = append(vals, args[i])
		sets = append(sets, col+" = "+r.ph(len(vals)))
	}
	vals = append(vals, rec.Key)

	res, err := r.store.DB.ExecContext(ctx,
		`UPDATE patients SET `+strings.Join(sets, ", ")+` WHERE patient_key = `+r.ph(len(vals)), vals...)
	if err != nil {
		return fmt.Errorf("patient update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("patient update: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the record and tombstones its key in one transaction.
func (r *repoSQL) Delete(ctx context.Context, key string) error {
	tx, err := r.store.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("patient delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `DELETE FROM patients WHERE patient_key = `+r.ph(1), key)
	if err != nil {
		return fmt.Errorf("patient delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("patient delete: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO patient_key_tombstones (patient_key, deleted_at) VALUES (`+r.ph(1)+`, `+r.ph(2)+`)`,
		key, time.Now().UTC()); err != nil {
		return fmt.Errorf("patient delete: %w", err)
	}
	return tx.Commit()
}

func (r *repoSQL) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.store.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM patients`).Scan(&n); err != nil {
		return 0, fmt.Errorf("patient count: %w", err)
	}
	return n, nil
}

// recordArgs returns bind values in recordColumns order. Nested objects are
// stored as JSON text; absent ones as NULL.
func recordArgs(rec *Record) ([]interface{}, error) {
	address, err := jsonColumn(rec.Address, rec.Address == nil)
	if err != nil {
		return nil, err
	}
	codes, err := jsonColumn(rec.DiagnosisCodes, rec.DiagnosisCodes == nil)
	if err != nil {
		return nil, err
	}
	insurance, err := jsonColumn(rec.Insurance, rec.Insurance == nil)
	if err != nil {
		return nil, err
	}
	team, err := jsonColumn(rec.Team, rec.Team == nil)
	if err != nil {
		return nil, err
	}
	agency, err := jsonColumn(rec.Agency, rec.Agency == nil)
	if err != nil {
		return nil, err
	}
	lastOrder, err := jsonColumn(rec.LastOrder, rec.LastOrder == nil)
	if err != nil {
		return nil, err
	}
	teamName := sql.NullString{String: rec.TeamName(), Valid: rec.Team != nil}

	return []interface{}{
		rec.Key, rec.DisplayID, rec.FirstName, rec.LastName, nullString(rec.DateOfBirth),
		nullString(rec.Gender), nullString(rec.Phone), nullString(rec.Email), address,
		nullString(rec.RoomNumber), nullString(rec.BedNumber), nullString(rec.AdmissionDate),
		nullString(rec.DischargeDate), nullString(rec.PrimaryPhysician),
		codes, nullString(rec.PayerType), insurance, rec.Status, rec.IsPinned,
		team, teamName, agency, lastOrder,
		rec.Metadata.CreatedAt, rec.Metadata.CreatedBy, rec.Metadata.UpdatedAt, rec.Metadata.UpdatedBy,
	}, nil
}

func jsonColumn(v interface{}, absent bool) (sql.NullString, error) {
	if absent {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func decodeColumn(ns sql.NullString, dst interface{}) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), dst)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var dob, gender, phone, email, address sql.NullString
	var room, bed, admission, discharge, physician sql.NullString
	var codes, payerType, insurance, team, teamName, agency, lastOrder sql.NullString
	err := row.Scan(
		&rec.Key, &rec.DisplayID, &rec.FirstName, &rec.LastName, &dob,
		&gender, &phone, &email, &address,
		&room, &bed, &admission, &discharge, &physician,
		&codes, &payerType, &insurance, &rec.Status, &rec.IsPinned,
		&team, &teamName, &agency, &lastOrder,
		&rec.Metadata.CreatedAt, &rec.Metadata.CreatedBy, &rec.Metadata.UpdatedAt, &rec.Metadata.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}

	rec.DateOfBirth = stringPtr(dob)
	rec.Gender = stringPtr(gender)
	rec.Phone = stringPtr(phone)
	rec.Email = stringPtr(email)
	rec.RoomNumber = stringPtr(room)
	rec.BedNumber = stringPtr(bed)
	rec.AdmissionDate = stringPtr(admission)
	rec.DischargeDate = stringPtr(discharge)
	rec.PrimaryPhysician = stringPtr(physician)
	rec.PayerType = stringPtr(payerType)

	if address.Valid {
		rec.Address = &Address{}
		if err := decodeColumn(address, rec.Address); err != nil {
			return nil, fmt.Errorf("decode address: %w", err)
		}
	}
	if err := decodeColumn(codes, &rec.DiagnosisCodes); err != nil {
		return nil, fmt.Errorf("decode diagnosis codes: %w", err)
	}
	if insurance.Valid {
		rec.Insurance = &Insurance{}
		if err := decodeColumn(insurance, rec.Insurance); err != nil {
			return nil, fmt.Errorf("decode insurance: %w", err)
		}
	}
	if team.Valid {
		rec.Team = &Team{}
		if err := decodeColumn(team, rec.Team); err != nil {
			return nil, fmt.Errorf("decode team: %w", err)
		}
	}
	if err := decodeColumn(agency, &rec.Agency); err != nil {
		return nil, fmt.Errorf("decode agency: %w", err)
	}
	if lastOrder.Valid {
		rec.LastOrder = &Order{}
		if err := decodeColumn(lastOrder, rec.LastOrder); err != nil {
			return nil, fmt.Errorf("decode last order: %w", err)
		}
	}
	rec.Metadata.CreatedAt = rec.Metadata.CreatedAt.UTC()
	rec.Metadata.UpdatedAt = rec.Metadata.UpdatedAt.UTC()
	return &rec, nil
}
