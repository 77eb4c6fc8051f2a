package config

import "github.com/spf13/viper"

// Environment keys. The same names are accepted as keys of a config file.
const (
	KeySourceDriver        = "SOURCE_DRIVER"
	KeyPostgresConnString  = "POSTGRES_CONNECTION_STRING"
	KeyPostgresSSL         = "POSTGRES_SSL"
	KeySQLConnString       = "SQL_CONNECTION_STRING"
	KeyMongoConnString     = "MONGO_CONNECTION_STRING"
	KeyMongoDatabase       = "MONGO_DATABASE"
	KeyBatchSize           = "BATCH_SIZE"
	KeyCacheDirectory      = "CACHE_DIRECTORY"
	KeyUseMetadataCache    = "USE_METADATA_CACHE"
	KeyCreateMetadataCache = "CREATE_METADATA_CACHE"
	KeyIncludeNulls        = "INCLUDE_NULLS"
	KeyLogLevel            = "LOG_LEVEL"
)

const (
	defaultBatchSize      = 5000
	defaultCacheDirectory = "./ptmTemp"
	defaultLogLevel       = "info"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeySourceDriver, string(DriverPostgres))
	v.SetDefault(KeyBatchSize, defaultBatchSize)
	v.SetDefault(KeyCacheDirectory, defaultCacheDirectory)
	v.SetDefault(KeyLogLevel, defaultLogLevel)
	v.SetDefault(KeyPostgresSSL, false)
	v.SetDefault(KeyUseMetadataCache, false)
	v.SetDefault(KeyCreateMetadataCache, false)
	v.SetDefault(KeyIncludeNulls, false)
}
