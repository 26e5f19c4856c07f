package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ENVIRONMENT", "development")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerPort != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.ServerPort)
	}
	if !cfg.UsingDevSecret() {
		t.Errorf("expected dev secret fallback outside production")
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Errorf("unexpected upload limit %d", cfg.MaxUploadBytes)
	}
	if cfg.Mail.SMTPPort != 465 || !cfg.Mail.SMTPSSL {
		t.Errorf("expected implicit TLS smtp defaults, got %d/%v", cfg.Mail.SMTPPort, cfg.Mail.SMTPSSL)
	}
}

func TestLoadRequiresSecretInProduction(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without JWT_SECRET in production")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"SERVER_PORT":              "abc",
		"STORAGE_BACKEND":          "mongo",
		"BLOB_BACKEND":             "s3",
		"MAIL_PROVIDER":            "smtp",
		"OTEL_TRACES_SAMPLE_RATIO": "1.5",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, val)
			}
		})
	}
}

func TestParseCSVEnv(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	got := parseCSVEnv("CORS_ALLOWED_ORIGINS", nil)
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", got)
	}
}
