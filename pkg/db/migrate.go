package db

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"example.com/funnel-payments/pkg/logger"
)

// NewMigrator создаёт golang-migrate инстанс над встроенными SQL файлами.
// dir — каталог внутри fsys (обычно ".").
func NewMigrator(fsys fs.FS, dir, databaseURL string) (*migrate.Migrate, error) {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации миграций: %w", err)
	}

	return m, nil
}

// MigrateUp применяет все ожидающие миграции.
// Отсутствие изменений ошибкой не считается.
func MigrateUp(fsys fs.FS, dir, databaseURL string) error {
	m, err := NewMigrator(fsys, dir, databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn().AnErr("source_err", srcErr).AnErr("db_err", dbErr).Msg("Ошибка закрытия мигратора")
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info().Msg("Миграции: схема уже актуальна")
			return nil
		}
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("Миграции применены")
	return nil
}
