package internal

const (
	DotEnvPath            = "./.env"
	MigrationsDirSQLite   = "migrations/sqlite"
	MigrationsDirPostgres = "migrations/postgres"
	RunDirLayout          = "20060102_150405000"
	DBTimestampLayout     = "2006-01-02 15:04:05"
	APIKeyHeader          = "X-Pipewright-API-Key"
	EnvHashKey            = "PIPEWRIGHT_HASH_KEY"
	ControllerAgent       = "controller"
	OSTypeLocal           = "local"
	OSTypeUnix            = "unix"
)
