// seed inserts development sample data: one user per role and a few vehicles.
// Idempotent: existing users (by email) and vehicles (by plate number) are skipped.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fleet-management/backend/internal/config"
	"fleet-management/backend/internal/db"
	"fleet-management/backend/internal/logger"
	"fleet-management/backend/internal/security"
	userdomain "fleet-management/backend/internal/user/domain"
	userrepo "fleet-management/backend/internal/user/repository"
	vehicledomain "fleet-management/backend/internal/vehicle/domain"
	vehiclerepo "fleet-management/backend/internal/vehicle/repository"
	vehicleservice "fleet-management/backend/internal/vehicle/service"
)

// devPassword satisfies the password rule so the seeded users can log in through the API.
const devPassword = "DevPassw0rd!"

type seedUser struct {
	email, name string
	role        userdomain.Role
}

var seedUsers = []seedUser{
	{"admin@fleet.dev", "Dev Admin", userdomain.RoleAdmin},
	{"manager@fleet.dev", "Dev Fleet Manager", userdomain.RoleFleetManager},
	{"driver@fleet.dev", "Dev Driver", userdomain.RoleUser},
}

var seedVehicles = []vehicleservice.CreateInput{
	{PlateNumber: "DEV-0001", Model: "Corolla", Manufacturer: "Toyota", Year: 2022, Type: vehicledomain.TypeCar},
	{PlateNumber: "DEV-0002", Model: "Sprinter", Manufacturer: "Mercedes-Benz", Year: 2021, Type: vehicledomain.TypeVan, SIMNumber: "8944100000000000001"},
	{PlateNumber: "DEV-0003", Model: "Actros", Manufacturer: "Mercedes-Benz", Year: 2019, Type: vehicledomain.TypeTruck, DeviceID: "tracker-0003"},
}

func main() {
	cost := flag.Int("bcrypt-cost", security.DefaultCost, "bcrypt cost for seeded passwords")
	flag.Parse()

	log := logger.New("info", logger.FormatConsole, "seed", os.Stderr)
	dsn, err := config.LoadDatabaseURL()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	ctx := log.WithContext(context.Background())
	pool, err := db.Open(ctx, dsn, db.DefaultConnectOptions)
	if err != nil {
		log.Fatal().Err(err).Msg("db")
	}
	defer pool.Close()

	users := userrepo.NewPostgresRepository(pool)
	driverID, err := seedAllUsers(ctx, log, users, security.NewHasher(*cost))
	if err != nil {
		log.Fatal().Err(err).Msg("seed users")
	}

	vehicles := vehicleservice.NewService(vehiclerepo.NewPostgresRepository(pool), users)
	// the first vehicle gets the seeded driver
	seedVehicles[0].DriverID = &driverID
	for _, in := range seedVehicles {
		v, err := vehicles.Create(ctx, in)
		switch {
		case errors.Is(err, vehicledomain.ErrPlateTaken), errors.Is(err, vehicledomain.ErrDriverAlreadyAssigned):
			log.Info().Str("plate_number", in.PlateNumber).Msg("vehicle exists, skipping")
		case err != nil:
			log.Fatal().Err(err).Str("plate_number", in.PlateNumber).Msg("seed vehicle")
		default:
			log.Info().Str("plate_number", v.PlateNumber).Str("id", v.ID).Msg("vehicle created")
		}
	}
	log.Info().Str("password", devPassword).Msg("seed complete")
}

// seedAllUsers creates the missing seed users and returns the id of the driver account.
func seedAllUsers(ctx context.Context, log zerolog.Logger, users *userrepo.PostgresRepository, hasher *security.Hasher) (string, error) {
	hash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		return "", err
	}
	var driverID string
	for _, su := range seedUsers {
		u, err := users.GetByEmail(ctx, su.email)
		if err != nil {
			return "", err
		}
		if u == nil {
			now := time.Now().UTC()
			u = &userdomain.User{
				ID: uuid.NewString(), Email: su.email, Name: su.name, Role: su.role,
				PasswordHash: hash, CreatedAt: now, UpdatedAt: now,
			}
			if err := u.Validate(); err != nil {
				return "", err
			}
			if err := users.Create(ctx, u); err != nil {
				return "", err
			}
			log.Info().Str("email", u.Email).Str("role", string(u.Role)).Msg("user created")
		} else {
			log.Info().Str("email", u.Email).Msg("user exists, skipping")
		}
		if su.role == userdomain.RoleUser {
			driverID = u.ID
		}
	}
	return driverID, nil
}
