package postgres

import "testing"

func TestDSNPrefersExplicitDSN(t *testing.T) {
	got := DSN(ClientConfig{DSN: "postgres://explicit", Host: "ignored"})
	if got != "postgres://explicit" {
		t.Fatalf("expected the explicit DSN to win, got %s", got)
	}
}

func TestDSNBuildsFromPartsWithDefaults(t *testing.T) {
	got := DSN(ClientConfig{Host: "db", Database: "agents", User: "u", Password: "p"})
	want := "postgres://u:p@db:5432/agents?sslmode=disable"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestDSNHonorsExplicitPortAndSSLMode(t *testing.T) {
	got := DSN(ClientConfig{Host: "db", Port: 6543, Database: "agents", User: "u", Password: "p", SSLMode: "require"})
	want := "postgres://u:p@db:6543/agents?sslmode=require"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
