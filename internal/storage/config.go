package storage

import (
	"os"
	"strings"
)

// MinIOConfig holds MinIO connection configuration
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	// Object is the dataset key read by the seeder.
	Object string
}

// Enabled reports whether an endpoint is configured.
func (c *MinIOConfig) Enabled() bool { return c != nil && c.Endpoint != "" }

// LoadMinIOConfig loads MinIO config from environment
func LoadMinIOConfig() *MinIOConfig {
	return &MinIOConfig{
		Endpoint:  os.Getenv("MINIO_ENDPOINT"),
		AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_SECRET_KEY"),
		UseSSL:    strings.EqualFold(os.Getenv("MINIO_USE_SSL"), "true"),
		Bucket:    getEnv("MINIO_BUCKET", "catalog"),
		Object:    getEnv("MINIO_DATASET_OBJECT", "netflix_titles.csv"),
	}
}

func getEnv(k, d string) string {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	return v
}
