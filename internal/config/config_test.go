package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.DBPath != "./pagesplit.db" {
		t.Errorf("DBPath = %q, want ./pagesplit.db", cfg.DBPath)
	}
	if cfg.Significance != 0.95 {
		t.Errorf("Significance = %v, want 0.95", cfg.Significance)
	}
	if cfg.AllowedOrigin != "*" {
		t.Errorf("AllowedOrigin = %q, want *", cfg.AllowedOrigin)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PS_LISTEN_ADDR", ":9999")
	t.Setenv("PS_DB_PATH", "/tmp/other.db")
	t.Setenv("PS_SIGNIFICANCE", "0.99")
	t.Setenv("PS_ALLOWED_ORIGIN", "https://book.example.com")

	cfg := Load()

	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q, want :9999", cfg.ListenAddr)
	}
	if cfg.DBPath != "/tmp/other.db" {
		t.Errorf("DBPath = %q, want /tmp/other.db", cfg.DBPath)
	}
	if cfg.Significance != 0.99 {
		t.Errorf("Significance = %v, want 0.99", cfg.Significance)
	}
	if cfg.AllowedOrigin != "https://book.example.com" {
		t.Errorf("AllowedOrigin = %q", cfg.AllowedOrigin)
	}
}

func TestLoad_BadSignificanceIgnored(t *testing.T) {
	for _, v := range []string{"nope", "0", "1", "1.5", "-0.5"} {
		t.Setenv("PS_SIGNIFICANCE", v)
		if cfg := Load(); cfg.Significance != 0.95 {
			t.Errorf("PS_SIGNIFICANCE=%q: Significance = %v, want default 0.95", v, cfg.Significance)
		}
	}
}
