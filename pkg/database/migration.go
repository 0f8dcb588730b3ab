package database

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type MigrationLogger struct {
	ectologger.Logger
}

func (l MigrationLogger) Verbose() bool {
	return true
}

func (l MigrationLogger) Printf(format string, v ...any) {
	l.Infof(format, v...)
}

type MigrationService struct {
	config *MigrationConfig
	logger ectologger.Logger
}

type MigrationConfig struct {
	MigrationFolderPath string
	Version             uint
	Force               int
	AutoRollback        bool // Attempt to roll the schema back to the previous version when a migration fails
}

func NewMigrationService(logger ectologger.Logger, config *MigrationConfig) *MigrationService {
	return &MigrationService{
		config: config,
		logger: logger,
	}
}

// MigratePostgres runs the migrations against an open Postgres connection.
func (ms *MigrationService) MigratePostgres(db *sqlx.DB, databaseName string) error {
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		ms.logger.WithError(err).Error("Failed to create postgres migration driver")
		return err
	}
	return ms.Migrate(databaseName, driver)
}

func (ms *MigrationService) Migrate(databaseName string, databaseInstance migratedb.Driver) error {
	migrationFolder := ms.resolveMigrationFolder()
	if _, err := os.Stat(migrationFolder); err != nil {
		return errors.Wrap(err, fmt.Sprintf("migration folder %s does not exist", migrationFolder))
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationFolder, databaseName, databaseInstance)
	if err != nil {
		ms.logger.WithError(err).Error("Failed to create migrate instance")
		return err
	}

	m.Log = MigrationLogger{Logger: ms.logger}

	return ms.runMigration(m)
}

func (ms *MigrationService) resolveMigrationFolder() string {
	migrationFolder := ms.config.MigrationFolderPath
	if _, err := os.Stat(migrationFolder); err == nil {
		return migrationFolder
	}
	workingDirectory, _ := os.Getwd()
	separator := ""
	if workingDirectory != "/" {
		separator = "/"
	}
	migrationFolder = workingDirectory + separator + migrationFolder
	return migrationFolder
}

func (ms *MigrationService) runMigration(m *migrate.Migrate) error {
	if ms.config.Force != 0 {
		if err := m.Force(ms.config.Force); err != nil {
			ms.logger.WithError(err).Errorf("Failed to force database to version %d", ms.config.Force)
			return err
		}
	}

	version, _, versionErr := m.Version()
	if versionErr != nil {
		ms.logger.WithError(versionErr).Error("Failed to get current migration version")
		version = 0
	}

	done := make(chan bool)
	go ms.logProgress(done)

	startTime := time.Now()

	var migrationErr error
	if ms.config.Version != 0 {
		migrationErr = m.Migrate(ms.config.Version)
	} else {
		migrationErr = m.Up()
	}

	done <- true

	elapsedTime := time.Since(startTime)
	ms.logger.Infof("Database migrations completed in %v", elapsedTime)

	return ms.handleMigrationError(m, migrationErr, version)
}

func (ms *MigrationService) logProgress(done chan bool) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	dots := 0
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			dots = (dots + 1) % 4
			ms.logger.Debugf("Executing database migrations%s", strings.Repeat(".", dots))
		}
	}
}

func (ms *MigrationService) handleMigrationError(m *migrate.Migrate, err error, previousVersion uint) error {
	if err == nil {
		ms.logger.Info("Successfully applied migrations")
		return nil
	}

	if err == migrate.ErrNoChange {
		ms.logger.Info("No new migrations to apply")
		return nil
	}

	// Usually the aftermath of a rollback: the recorded version no longer has a file.
	if strings.Contains(err.Error(), "no migration found for version") {
		latest, latestErr := getLatestVersion(ms.resolveMigrationFolder())
		if latestErr != nil {
			ms.logger.WithError(latestErr).Error("Failed to get latest migration version")
		}
		ms.logger.Warnf("No migration found for version %d. Latest version is %d", previousVersion, latest)
		ms.logger.Infof("Forcing database to version %d", latest)
		if err := m.Force(latest); err != nil {
			ms.logger.WithError(err).Errorf("Failed to force database to version %d", latest)
			return err
		}
		return nil
	}

	ms.logger.WithError(err).Errorf("Migration failed with error: %v", err)

	version, dirty, versionErr := m.Version()
	if versionErr != nil && versionErr != migrate.ErrNilVersion {
		ms.logger.WithError(versionErr).Error("Failed to get current migration version")
	} else if ms.config.AutoRollback {
		if previousVersion == 0 {
			previousVersion = version - 1
		}

		if dirty {
			ms.logger.Warnf("Database is dirty at version %d. Reverting to version %d", version, previousVersion)
			if forceErr := m.Force(int(previousVersion)); forceErr != nil {
				ms.logger.WithError(forceErr).Errorf("Failed to force database to version %d", previousVersion)
				return forceErr
			}
		}

		// Still return the original error so the host does not start on a bad schema.
		return err
	}

	ms.logger.WithError(err).Errorf("Failed to apply migrations. Database version is dirty=%t at version %d", dirty, version)
	return err
}

func getLatestVersion(folderPath string) (int, error) {
	files, err := os.ReadDir(folderPath)
	if err != nil {
		return 0, err
	}

	var versions []int
	re := regexp.MustCompile(`^(\d+)_.*\.up\.sql$`)

	for _, file := range files {
		if file.IsDir() {
			continue
		}
		matches := re.FindStringSubmatch(file.Name())
		if len(matches) > 1 {
			version, err := strconv.Atoi(matches[1])
			if err != nil {
				return 0, err
			}
			versions = append(versions, version)
		}
	}

	if len(versions) == 0 {
		return 0, fmt.Errorf("no migration files found")
	}

	sort.Ints(versions)
	return versions[len(versions)-1], nil
}
