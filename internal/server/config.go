package server

import (
	"os"
	"time"
)

type Config struct {
	Addr               string
	MongoURI           string
	MongoDB            string
	UsersCollection    string
	ItemsCollection    string
	RequestsCollection string
	GrantsCollection   string
	BlobsCollection    string
	AuditCollection    string
	BlobDir            string
	JWTIssuer          string
	TokenTTL           time.Duration
	TOTPIssuer         string
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.UsersCollection == "" {
		c.UsersCollection = "users"
	}
	if c.ItemsCollection == "" {
		c.ItemsCollection = "items"
	}
	if c.RequestsCollection == "" {
		c.RequestsCollection = "access_requests"
	}
	if c.GrantsCollection == "" {
		c.GrantsCollection = "share_grants"
	}
	if c.BlobsCollection == "" {
		c.BlobsCollection = "item_blobs"
	}
	if c.AuditCollection == "" {
		c.AuditCollection = "audit_events"
	}
	if c.JWTIssuer == "" {
		c.JWTIssuer = "familyvault-backend"
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 15 * time.Minute
	}
	if c.TOTPIssuer == "" {
		c.TOTPIssuer = "FamilyVault"
	}
}

// ConfigFromEnv reads the environment the way the deployment scripts set it.
// Call after godotenv has loaded any .env file.
func ConfigFromEnv() Config {
	ttl, _ := time.ParseDuration(os.Getenv("TOKEN_TTL"))
	return Config{
		Addr:       os.Getenv("LISTEN_ADDR"),
		MongoURI:   os.Getenv("MONGO_URI"),
		MongoDB:    os.Getenv("MONGO_DB"),
		BlobDir:    os.Getenv("BLOB_DIR"),
		JWTIssuer:  os.Getenv("JWT_ISSUER"),
		TokenTTL:   ttl,
		TOTPIssuer: os.Getenv("TOTP_ISSUER"),
	}
}
