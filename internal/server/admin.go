package server

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v3"

	goRecover "github.com/MrEthical07/goRecover"
	"github.com/MrEthical07/goRecover/internal/database"
	"github.com/MrEthical07/goRecover/internal/repository"
	"github.com/MrEthical07/goRecover/password"
)

func openDatabase(cmd *cli.Command) (*sqlx.DB, string, error) {
	driver := cmd.String("database-driver")
	db, err := database.Open(driver, cmd.String("database-dsn"))
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}
	if driver == "" {
		driver = database.DriverSQLite
	}
	return db, driver, nil
}

// Migrate runs the migration named by the first argument: up (default),
// down, reset or status. Opening the database already applies pending
// migrations.
func Migrate(_ context.Context, cmd *cli.Command) error {
	db, driver, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // read-only after migration

	switch action := cmd.Args().First(); action {
	case "", "up":
	case "down":
		err = database.MigrateDown(db.DB, driver)
	case "reset":
		err = database.MigrateReset(db.DB, driver)
	case "status":
	default:
		return fmt.Errorf("unknown migrate action %q", action)
	}
	if err != nil {
		return err
	}

	version, err := database.MigrationVersion(db.DB, driver)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.Root().Writer, "schema version %d\n", version)
	return err
}

// GenKeys prints a fresh seal key and ed25519 key pair as environment
// assignments.
func GenKeys(_ context.Context, cmd *cli.Command) error {
	return writeKeys(cmd.Root().Writer)
}

func writeKeys(w io.Writer) error {
	seal := make([]byte, 32)
	if _, err := rand.Read(seal); err != nil {
		return err
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "SEAL_KEY=%s\nTOKEN_PRIVATE_KEY=%s\nTOKEN_PUBLIC_KEY=%s\n",
		hex.EncodeToString(seal), hex.EncodeToString(priv), hex.EncodeToString(pub))
	return err
}

// SetLocked returns an action that locks or unlocks the password of the
// employee id given as the first argument.
func SetLocked(locked bool) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		employeeID := cmd.Args().First()
		if employeeID == "" {
			return errors.New("employee id required")
		}
		db, _, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		hasher, err := password.NewArgon2(password.DefaultConfig())
		if err != nil {
			return err
		}
		store := repository.NewPasswordStore(repository.New(db), hasher, repository.PasswordOptions{})
		if err := store.SetLocked(ctx, employeeID, locked); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.Root().Writer, "%s locked=%t\n", employeeID, locked)
		return err
	}
}

// AddMethod registers a verified MFA method: add-method <employee-id> <type> <value>.
func AddMethod(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args()
	if args.Len() != 3 {
		return errors.New("usage: add-method <employee-id> <type> <value>")
	}
	db, _, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	store := repository.NewMethodStore(repository.New(db))
	method, err := store.Add(ctx, args.Get(0), goRecover.MfaMethod{
		Type:     args.Get(1),
		Value:    args.Get(2),
		Verified: true,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.Root().Writer, "added %s method %s\n", method.Type, method.ID)
	return err
}
