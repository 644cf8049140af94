package config

// EnvPrefix namespaces every environment variable read by envconfig.
const EnvPrefix = "MUKHTABAR"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "MUKHTABAR_DB_DSN"
	EnvDBHost = "MUKHTABAR_DB_HOST"
	EnvDBUser = "MUKHTABAR_DB_USER"
	EnvDBName = "MUKHTABAR_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
