package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"fleet-management/backend/internal/db"
	"fleet-management/backend/internal/vehicle/domain"
)

const (
	vehicleColumns = `v.id, v.plate_number, v.model, v.manufacturer, v.year, v.type, COALESCE(v.sim_number, ''), COALESCE(v.device_id, ''), COALESCE(v.driver_id, ''), v.created_at, v.updated_at`
	driverColumns  = `COALESCE(u.name, ''), COALESCE(u.email, ''), COALESCE(u.phone, '')`

	plateConstraint  = "vehicles_plate_number_key"
	driverConstraint = "vehicles_driver_id_key"
	driverForeignKey = "vehicles_driver_id_fkey"
)

type PostgresRepository struct {
	pool db.Pool
}

// NewPostgresRepository returns a vehicle repository backed by pool.
func NewPostgresRepository(pool db.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, v *domain.Vehicle) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO vehicles (id, plate_number, model, manufacturer, year, type, sim_number, device_id, driver_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		v.ID, v.PlateNumber, v.Model, v.Manufacturer, v.Year, string(v.Type),
		nullable(v.SIMNumber), nullable(v.DeviceID), nullableID(v.DriverID), v.CreatedAt, v.UpdatedAt)
	if err != nil {
		if mapped := mapConstraint(err); mapped != nil {
			return mapped
		}
		return oops.Code("VEHICLE_CREATE_FAILED").With("vehicle_id", v.ID).Wrap(err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+vehicleColumns+`, `+driverColumns+`
		FROM vehicles v LEFT JOIN users u ON u.id = v.driver_id
		WHERE v.id = $1`, id)

	var v domain.Vehicle
	var typ, driverID string
	var d domain.Driver
	err := row.Scan(&v.ID, &v.PlateNumber, &v.Model, &v.Manufacturer, &v.Year, &typ, &v.SIMNumber, &v.DeviceID, &driverID, &v.CreatedAt, &v.UpdatedAt,
		&d.Name, &d.Email, &d.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, oops.Code("VEHICLE_GET_FAILED").With("vehicle_id", id).Wrap(err)
	}
	v.Type = domain.Type(typ)
	if driverID != "" {
		v.DriverID = &driverID
		d.ID = driverID
		v.Driver = &d
	}
	return &v, nil
}

func (r *PostgresRepository) List(ctx context.Context, q ListQuery) ([]*domain.Vehicle, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + vehicleColumns + ` FROM vehicles v`)
	switch q.Status {
	case "":
	case domain.StatusAssigned:
		sb.WriteString(` WHERE v.driver_id IS NOT NULL`)
	case domain.StatusUnassigned:
		sb.WriteString(` WHERE v.driver_id IS NULL`)
	default:
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalid, q.Status)
	}

	order, err := orderBy(q.Sort)
	if err != nil {
		return nil, err
	}
	sb.WriteString(order)

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	offset := max(q.Offset, 0)
	sb.WriteString(` LIMIT $1 OFFSET $2`)

	rows, err := r.pool.Query(ctx, sb.String(), limit, offset)
	if err != nil {
		return nil, oops.Code("VEHICLE_LIST_FAILED").Wrap(err)
	}
	defer rows.Close()

	var out []*domain.Vehicle
	for rows.Next() {
		var v domain.Vehicle
		var typ, driverID string
		if err := rows.Scan(&v.ID, &v.PlateNumber, &v.Model, &v.Manufacturer, &v.Year, &typ, &v.SIMNumber, &v.DeviceID, &driverID, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, oops.Code("VEHICLE_LIST_FAILED").Wrap(err)
		}
		v.Type = domain.Type(typ)
		if driverID != "" {
			v.DriverID = &driverID
		}
		out = append(out, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("VEHICLE_LIST_FAILED").Wrap(err)
	}
	return out, nil
}

func (r *PostgresRepository) Update(ctx context.Context, v *domain.Vehicle) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE vehicles SET plate_number = $2, model = $3, manufacturer = $4, year = $5, type = $6,
			sim_number = $7, device_id = $8, driver_id = $9, updated_at = $10
		WHERE id = $1`,
		v.ID, v.PlateNumber, v.Model, v.Manufacturer, v.Year, string(v.Type),
		nullable(v.SIMNumber), nullable(v.DeviceID), nullableID(v.DriverID), v.UpdatedAt)
	if err != nil {
		if mapped := mapConstraint(err); mapped != nil {
			return mapped
		}
		return oops.Code("VEHICLE_UPDATE_FAILED").With("vehicle_id", v.ID).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM vehicles WHERE id = $1`, id); err != nil {
		return oops.Code("VEHICLE_DELETE_FAILED").With("vehicle_id", id).Wrap(err)
	}
	return nil
}

func (r *PostgresRepository) SetDriver(ctx context.Context, id string, driverID *string, now time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE vehicles SET driver_id = $2, updated_at = $3 WHERE id = $1`, id, nullableID(driverID), now)
	if err != nil {
		if mapped := mapConstraint(err); mapped != nil {
			return mapped
		}
		return oops.Code("VEHICLE_UPDATE_FAILED").With("vehicle_id", id).With("operation", "set driver").Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) ExistsByDriver(ctx context.Context, driverID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM vehicles WHERE driver_id = $1)`, driverID).Scan(&exists)
	if err != nil {
		return false, oops.Code("VEHICLE_GET_FAILED").With("driver_id", driverID).Wrap(err)
	}
	return exists, nil
}

func orderBy(fields []SortField) (string, error) {
	if len(fields) == 0 {
		return ` ORDER BY v.created_at DESC, v.id`, nil
	}
	parts := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		if !Sortable[f.Field] {
			return "", fmt.Errorf("%w: cannot sort by %q", domain.ErrInvalid, f.Field)
		}
		dir := "ASC"
		if f.Desc {
			dir = "DESC"
		}
		parts = append(parts, "v."+f.Field+" "+dir)
	}
	// stable paging across equal keys
	parts = append(parts, "v.id")
	return ` ORDER BY ` + strings.Join(parts, ", "), nil
}

func mapConstraint(err error) error {
	switch {
	case db.IsUniqueViolation(err, plateConstraint):
		return domain.ErrPlateTaken
	case db.IsUniqueViolation(err, driverConstraint):
		return domain.ErrDriverAlreadyAssigned
	case db.IsForeignKeyViolation(err, driverForeignKey):
		return domain.ErrDriverNotFound
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableID(id *string) any {
	if id == nil {
		return nil
	}
	return *id
}
