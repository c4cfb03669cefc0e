// README: Postgres backend on pgx; one pgx.Tx per unit of work.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridepool/internal/domain"
	"ridepool/internal/types"
)

// db is satisfied by *pgxpool.Pool and pgx.Tx so every store can run either
// on the pool or inside a transaction.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) InTx(ctx context.Context, fn func(ctx context.Context, repos Repos) error) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		return fn(ctx, pgRepos(tx))
	})
}

func (p *Postgres) Repos() Repos {
	return pgRepos(p.pool)
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func pgRepos(q db) Repos {
	return Repos{
		Rides:  &pgRides{db: q},
		Groups: &pgGroups{db: q},
		Cabs:   &pgCabs{db: q},
	}
}

func notFound(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func idPtr(s *string) *types.ID {
	if s == nil {
		return nil
	}
	id := types.ID(*s)
	return &id
}

func strPtr(id *types.ID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}

// ---------------------------------------------------------------------------
// Rides
// ---------------------------------------------------------------------------

const rideColumns = `
	id, user_id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, status,
	seats_requested, luggage_count, ride_group_id, idempotency_key, price,
	created_at, matched_at, updated_at`

type pgRides struct {
	db db
}

func scanRide(row pgx.Row) (*domain.Ride, error) {
	var r domain.Ride
	var id, status string
	var groupID *string
	err := row.Scan(
		&id, &r.UserID, &r.Pickup.Lat, &r.Pickup.Lng, &r.Dropoff.Lat, &r.Dropoff.Lng, &status,
		&r.SeatsRequested, &r.LuggageCount, &groupID, &r.IdempotencyKey, &r.Price,
		&r.CreatedAt, &r.MatchedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.ID = types.ID(id)
	r.Status = domain.RideStatus(status)
	r.GroupID = idPtr(groupID)
	return &r, nil
}

func collectRides(rows pgx.Rows) ([]*domain.Ride, error) {
	defer rows.Close()
	var out []*domain.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *pgRides) Create(ctx context.Context, r *domain.Ride) (*domain.Ride, error) {
	const q = `
		INSERT INTO rides (
			id, user_id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, status,
			seats_requested, luggage_count, ride_group_id, idempotency_key, price,
			created_at, matched_at, updated_at
		) VALUES (
			@id, @user_id, @pickup_lat, @pickup_lng, @dropoff_lat, @dropoff_lng, @status,
			@seats, @luggage, @group_id, @key, @price,
			@created_at, @matched_at, @updated_at
		)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING` + rideColumns

	args := pgx.NamedArgs{
		"id":          string(r.ID),
		"user_id":     r.UserID,
		"pickup_lat":  r.Pickup.Lat,
		"pickup_lng":  r.Pickup.Lng,
		"dropoff_lat": r.Dropoff.Lat,
		"dropoff_lng": r.Dropoff.Lng,
		"status":      string(r.Status),
		"seats":       r.SeatsRequested,
		"luggage":     r.LuggageCount,
		"group_id":    strPtr(r.GroupID),
		"key":         r.IdempotencyKey,
		"price":       r.Price,
		"created_at":  r.CreatedAt,
		"matched_at":  r.MatchedAt,
		"updated_at":  r.UpdatedAt,
	}

	created, err := scanRide(s.db.QueryRow(ctx, q, args))
	if errors.Is(err, pgx.ErrNoRows) && r.IdempotencyKey != nil {
		return s.GetByIdempotencyKey(ctx, *r.IdempotencyKey)
	}
	if err != nil {
		return nil, fmt.Errorf("storage.pgRides.Create: %w", err)
	}
	return created, nil
}

func (s *pgRides) GetPending(ctx context.Context) ([]*domain.Ride, error) {
	rows, err := s.db.Query(ctx, `SELECT`+rideColumns+`
		FROM rides
		WHERE status = 'PENDING'
		ORDER BY created_at, seq
		FOR UPDATE SKIP LOCKED`)
	if err != nil {
		return nil, fmt.Errorf("storage.pgRides.GetPending: %w", err)
	}
	out, err := collectRides(rows)
	if err != nil {
		return nil, fmt.Errorf("storage.pgRides.GetPending: %w", err)
	}
	return out, nil
}

func (s *pgRides) GetByID(ctx context.Context, id types.ID) (*domain.Ride, error) {
	r, err := scanRide(s.db.QueryRow(ctx, `SELECT`+rideColumns+` FROM rides WHERE id = $1`, string(id)))
	if err != nil {
		return nil, notFound("storage.pgRides.GetByID", err)
	}
	return r, nil
}

func (s *pgRides) GetByIDForUpdate(ctx context.Context, id types.ID) (*domain.Ride, error) {
	r, err := scanRide(s.db.QueryRow(ctx, `SELECT`+rideColumns+` FROM rides WHERE id = $1 FOR UPDATE`, string(id)))
	if err != nil {
		return nil, notFound("storage.pgRides.GetByIDForUpdate", err)
	}
	return r, nil
}

func (s *pgRides) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Ride, error) {
	r, err := scanRide(s.db.QueryRow(ctx, `SELECT`+rideColumns+` FROM rides WHERE idempotency_key = $1`, key))
	if err != nil {
		return nil, notFound("storage.pgRides.GetByIdempotencyKey", err)
	}
	return r, nil
}

func (s *pgRides) GetInGroup(ctx context.Context, groupID types.ID) ([]*domain.Ride, error) {
	rows, err := s.db.Query(ctx, `SELECT`+rideColumns+`
		FROM rides
		WHERE ride_group_id = $1
		ORDER BY matched_at, created_at, seq`, string(groupID))
	if err != nil {
		return nil, fmt.Errorf("storage.pgRides.GetInGroup: %w", err)
	}
	out, err := collectRides(rows)
	if err != nil {
		return nil, fmt.Errorf("storage.pgRides.GetInGroup: %w", err)
	}
	return out, nil
}

func (s *pgRides) Update(ctx context.Context, r *domain.Ride) error {
	const q = `
		UPDATE rides SET
			status = @status,
			ride_group_id = @group_id,
			price = @price,
			matched_at = @matched_at,
			updated_at = @updated_at
		WHERE id = @id`

	tag, err := s.db.Exec(ctx, q, pgx.NamedArgs{
		"id":         string(r.ID),
		"status":     string(r.Status),
		"group_id":   strPtr(r.GroupID),
		"price":      r.Price,
		"matched_at": r.MatchedAt,
		"updated_at": r.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("storage.pgRides.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage.pgRides.Update: ride %s: %w", r.ID, domain.ErrNotFound)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Groups
// ---------------------------------------------------------------------------

const groupColumns = `
	id, cab_id, seats_occupied, luggage_occupied, status, h3_cell, created_at, updated_at`

type pgGroups struct {
	db db
}

func scanGroup(row pgx.Row) (*domain.RideGroup, error) {
	var g domain.RideGroup
	var id, status string
	var cabID *string
	err := row.Scan(&id, &cabID, &g.SeatsOccupied, &g.LuggageOccupied, &status, &g.Cell, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	g.ID = types.ID(id)
	g.CabID = idPtr(cabID)
	g.Status = domain.GroupStatus(status)
	return &g, nil
}

func (s *pgGroups) list(ctx context.Context, op, q string, args ...any) ([]*domain.RideGroup, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []*domain.RideGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *pgGroups) GetActiveForUpdate(ctx context.Context, cell string) ([]*domain.RideGroup, error) {
	const op = "storage.pgGroups.GetActiveForUpdate"
	if cell == "" {
		return s.list(ctx, op, `SELECT`+groupColumns+`
			FROM ride_groups
			WHERE status = 'ACTIVE'
			ORDER BY seq
			FOR UPDATE`)
	}
	return s.list(ctx, op, `SELECT`+groupColumns+`
		FROM ride_groups
		WHERE status = 'ACTIVE' AND h3_cell = $1
		ORDER BY seq
		FOR UPDATE`, cell)
}

func (s *pgGroups) GetActive(ctx context.Context) ([]*domain.RideGroup, error) {
	return s.list(ctx, "storage.pgGroups.GetActive", `SELECT`+groupColumns+`
		FROM ride_groups
		WHERE status = 'ACTIVE'
		ORDER BY seq`)
}

func (s *pgGroups) Create(ctx context.Context, g *domain.RideGroup) error {
	const q = `
		INSERT INTO ride_groups (id, cab_id, seats_occupied, luggage_occupied, status, h3_cell, created_at, updated_at)
		VALUES (@id, @cab_id, @seats, @luggage, @status, @cell, @created_at, @updated_at)`

	_, err := s.db.Exec(ctx, q, pgx.NamedArgs{
		"id":         string(g.ID),
		"cab_id":     strPtr(g.CabID),
		"seats":      g.SeatsOccupied,
		"luggage":    g.LuggageOccupied,
		"status":     string(g.Status),
		"cell":       g.Cell,
		"created_at": g.CreatedAt,
		"updated_at": g.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("storage.pgGroups.Create: %w", err)
	}
	return nil
}

func (s *pgGroups) GetByID(ctx context.Context, id types.ID) (*domain.RideGroup, error) {
	g, err := scanGroup(s.db.QueryRow(ctx, `SELECT`+groupColumns+` FROM ride_groups WHERE id = $1`, string(id)))
	if err != nil {
		return nil, notFound("storage.pgGroups.GetByID", err)
	}
	return g, nil
}

func (s *pgGroups) GetByIDForUpdate(ctx context.Context, id types.ID) (*domain.RideGroup, error) {
	g, err := scanGroup(s.db.QueryRow(ctx, `SELECT`+groupColumns+` FROM ride_groups WHERE id = $1 FOR UPDATE`, string(id)))
	if err != nil {
		return nil, notFound("storage.pgGroups.GetByIDForUpdate", err)
	}
	return g, nil
}

func (s *pgGroups) Update(ctx context.Context, g *domain.RideGroup) error {
	const q = `
		UPDATE ride_groups SET
			cab_id = @cab_id,
			seats_occupied = @seats,
			luggage_occupied = @luggage,
			status = @status,
			updated_at = @updated_at
		WHERE id = @id`

	tag, err := s.db.Exec(ctx, q, pgx.NamedArgs{
		"id":         string(g.ID),
		"cab_id":     strPtr(g.CabID),
		"seats":      g.SeatsOccupied,
		"luggage":    g.LuggageOccupied,
		"status":     string(g.Status),
		"updated_at": g.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("storage.pgGroups.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage.pgGroups.Update: group %s: %w", g.ID, domain.ErrNotFound)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Cabs
// ---------------------------------------------------------------------------

const cabColumns = `id, vehicle_type, max_seats, max_luggage, lat, lng, is_available, created_at`

type pgCabs struct {
	db db
}

func scanCab(row pgx.Row) (*domain.Cab, error) {
	var c domain.Cab
	var id, vt string
	err := row.Scan(&id, &vt, &c.MaxSeats, &c.MaxLuggage, &c.Location.Lat, &c.Location.Lng, &c.Available, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.ID = types.ID(id)
	c.VehicleType = domain.VehicleType(vt)
	return &c, nil
}

func (s *pgCabs) Create(ctx context.Context, c *domain.Cab) error {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO cabs (`+cabColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(c.ID), string(c.VehicleType), c.MaxSeats, c.MaxLuggage,
		c.Location.Lat, c.Location.Lng, c.Available, createdAt,
	)
	if err != nil {
		return fmt.Errorf("storage.pgCabs.Create: %w", err)
	}
	return nil
}

func (s *pgCabs) GetAvailable(ctx context.Context) ([]*domain.Cab, error) {
	rows, err := s.db.Query(ctx, `SELECT `+cabColumns+` FROM cabs WHERE is_available ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("storage.pgCabs.GetAvailable: %w", err)
	}
	defer rows.Close()

	var out []*domain.Cab
	for rows.Next() {
		c, err := scanCab(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.pgCabs.GetAvailable: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.pgCabs.GetAvailable: %w", err)
	}
	return out, nil
}

func (s *pgCabs) GetByID(ctx context.Context, id types.ID) (*domain.Cab, error) {
	c, err := scanCab(s.db.QueryRow(ctx, `SELECT `+cabColumns+` FROM cabs WHERE id = $1`, string(id)))
	if err != nil {
		return nil, notFound("storage.pgCabs.GetByID", err)
	}
	return c, nil
}

func (s *pgCabs) CountAvailable(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM cabs WHERE is_available`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage.pgCabs.CountAvailable: %w", err)
	}
	return n, nil
}

func (s *pgCabs) Claim(ctx context.Context, id types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE cabs SET is_available = FALSE WHERE id = $1 AND is_available`, string(id))
	if err != nil {
		return false, fmt.Errorf("storage.pgCabs.Claim: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *pgCabs) Free(ctx context.Context, id types.ID) error {
	tag, err := s.db.Exec(ctx, `UPDATE cabs SET is_available = TRUE WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("storage.pgCabs.Free: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage.pgCabs.Free: cab %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
