package config

// EnvPrefix namespaces every environment variable the service reads.
const EnvPrefix = "BOOST"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "BOOST_DB_DSN"
	EnvDBHost = "BOOST_DB_HOST"
	EnvDBUser = "BOOST_DB_USER"
	EnvDBName = "BOOST_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
