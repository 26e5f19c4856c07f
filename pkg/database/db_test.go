package database

import (
	"net/url"
	"testing"
)

func TestDSNEscapesCredentials(t *testing.T) {
	cfg := &Config{
		Host:     "db.internal",
		Port:     5433,
		User:     "request desk",
		Password: "p@ss/w:rd?",
		Database: "requestdesk",
		SSLMode:  "require",
	}

	u, err := url.Parse(cfg.DSN())
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	if u.Host != "db.internal:5433" {
		t.Fatalf("host = %q", u.Host)
	}
	if got, _ := u.User.Password(); got != cfg.Password {
		t.Fatalf("password round trip = %q", got)
	}
	if u.User.Username() != cfg.User {
		t.Fatalf("user round trip = %q", u.User.Username())
	}
	if u.Path != "/requestdesk" || u.Query().Get("sslmode") != "require" {
		t.Fatalf("unexpected dsn %s", cfg.DSN())
	}
}

func TestDSNWithoutSSLMode(t *testing.T) {
	cfg := &Config{Host: "localhost", Port: 5432, User: "u", Password: "p", Database: "d"}
	if got := cfg.DSN(); got != "postgres://u:p@localhost:5432/d" {
		t.Fatalf("dsn = %s", got)
	}
}
