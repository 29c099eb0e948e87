package internal

import (
	"fmt"

	"DF-WIZARD/internal/config"
	"DF-WIZARD/internal/logger"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var DB *gorm.DB

func InitDB(cfg *config.Config) error {
	dsn := cfg.Database.DSN()

	var err error
	DB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := autoMigrate(); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Log.Info("database connected and migrated", zap.String("db", cfg.Database.DBName))
	return nil
}

func autoMigrate() error {
	logger.Log.Debug("ensuring session_values table exists")
	result := DB.Exec(`
        CREATE TABLE IF NOT EXISTS session_values (
            session_id varchar(36) NOT NULL,
            ` + "`key`" + ` varchar(64) NOT NULL,
            value longtext,
            created_at datetime(3) NULL,
            updated_at datetime(3) NULL,
            PRIMARY KEY (session_id, ` + "`key`" + `),
            INDEX idx_session_values_updated_at (updated_at)
        )
    `)
	if result.Error != nil {
		return fmt.Errorf("failed to create session_values table: %w", result.Error)
	}

	logger.Log.Debug("ensuring generation_logs table exists")
	result = DB.Exec(`
        CREATE TABLE IF NOT EXISTS generation_logs (
            id varchar(36) PRIMARY KEY,
            session_id varchar(36),
            template_id varchar(191),
            data_file_id varchar(191),
            job_id varchar(191),
            output_format varchar(10),
            process_all boolean,
            start_row bigint NULL,
            end_row bigint NULL,
            filename_pattern varchar(255),
            mapping json,
            status varchar(20),
            error text,
            archive_size bigint,
            duration_ms bigint,
            created_at datetime(3) NULL,
            updated_at datetime(3) NULL,
            deleted_at datetime(3) NULL,
            INDEX idx_generation_logs_session_id (session_id),
            INDEX idx_generation_logs_output_format (output_format),
            INDEX idx_generation_logs_status (status),
            INDEX idx_generation_logs_created_at (created_at),
            INDEX idx_generation_logs_deleted_at (deleted_at)
        )
    `)
	if result.Error != nil {
		return fmt.Errorf("failed to create generation_logs table: %w", result.Error)
	}

	ensureGenerationLogColumns := map[string]string{
		"job_id":       "ALTER TABLE generation_logs ADD COLUMN job_id varchar(191)",
		"error":        "ALTER TABLE generation_logs ADD COLUMN error text",
		"archive_size": "ALTER TABLE generation_logs ADD COLUMN archive_size bigint",
		"duration_ms":  "ALTER TABLE generation_logs ADD COLUMN duration_ms bigint",
	}

	for column, stmt := range ensureGenerationLogColumns {
		if err := ensureColumn("generation_logs", column, stmt); err != nil {
			return err
		}
	}

	return nil
}

func ensureColumn(table, column, statement string) error {
	if DB.Migrator().HasColumn(table, column) {
		return nil
	}

	logger.Log.Info("adding missing column", zap.String("table", table), zap.String("column", column))
	if err := DB.Exec(statement).Error; err != nil {
		return fmt.Errorf("failed to add column %s.%s: %w", table, column, err)
	}

	return nil
}

func CloseDB() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}
