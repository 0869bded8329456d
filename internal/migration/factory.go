package migration

import (
	"fmt"

	"go.uber.org/zap"

	appconfig "github.com/defensoria-civil/divorcios/config"
)

// NewMigratorFromDatabaseConfig 由应用数据库配置创建迁移器
func NewMigratorFromDatabaseConfig(dbCfg appconfig.DatabaseConfig, logger *zap.Logger) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}
	return NewMigrator(Config{
		DatabaseType: dbType,
		DatabaseURL: BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name,
			dbCfg.User, dbCfg.Password, dbCfg.SSLMode),
	}, logger)
}
