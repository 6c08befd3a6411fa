// Утилита миграций схемы payment-service.
//
//	go run ./services/payment/cmd/migrate up
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/caarlos0/env/v10"
	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"

	"example.com/funnel-payments/pkg/config"
	dbpkg "example.com/funnel-payments/pkg/db"
	"example.com/funnel-payments/pkg/logger"
	"example.com/funnel-payments/services/payment/migrations"
)

func main() {
	_ = godotenv.Load()
	logger.Init(logger.Config{Level: "info", Pretty: true})

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Только MySQL: остальная конфигурация сервиса утилите не нужна
	var mysqlCfg config.MySQLConfig
	if err := env.Parse(&mysqlCfg); err != nil {
		logger.Fatal().Err(err).Msg("Ошибка парсинга конфигурации MySQL")
	}

	log := logger.With().
		Str("host", mysqlCfg.Host).
		Str("database", mysqlCfg.Database).
		Logger()

	m, err := dbpkg.NewMigrator(migrations.FS, ".", mysqlCfg.MigrateURL())
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка инициализации миграций")
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.Warn().AnErr("source_err", srcErr).AnErr("db_err", dbErr).Msg("Ошибка закрытия мигратора")
		}
	}()

	switch command := os.Args[1]; command {
	case "up":
		err = m.Up()
	case "down":
		// Откатываем только последнюю миграцию
		err = m.Steps(-1)
	case "goto":
		if len(os.Args) < 3 {
			log.Fatal().Msg("Укажите номер версии")
		}
		version, parseErr := strconv.ParseUint(os.Args[2], 10, 64)
		if parseErr != nil {
			log.Fatal().Err(parseErr).Msg("Невалидный номер версии")
		}
		err = m.Migrate(uint(version))
	case "status":
		version, dirty, vErr := m.Version()
		switch {
		case errors.Is(vErr, migrate.ErrNilVersion):
			log.Info().Msg("Миграции ещё не применялись")
		case vErr != nil:
			log.Fatal().Err(vErr).Msg("Ошибка чтения версии")
		default:
			log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Текущая версия схемы")
		}
		return
	default:
		printUsage()
		os.Exit(1)
	}

	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Info().Msg("Изменений нет: схема актуальна")
	case err != nil:
		log.Fatal().Err(err).Str("command", os.Args[1]).Msg("Ошибка выполнения миграций")
	default:
		version, dirty, _ := m.Version()
		log.Info().Str("command", os.Args[1]).Uint("version", version).Bool("dirty", dirty).Msg("Миграции выполнены")
	}
}

func printUsage() {
	fmt.Println("Использование: migrate <command>")
	fmt.Println("Команды:")
	fmt.Println("  up     — применить все миграции")
	fmt.Println("  down   — откатить последнюю миграцию")
	fmt.Println("  goto N — перейти к версии N")
	fmt.Println("  status — показать текущую версию")
}
