package persistence

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/loyalty-scanner/internal/config"
)

func TestNewPostgresConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		dsn     string
		wantDSN bool
	}{
		{name: "missing dsn", wantDSN: true},
		{name: "malformed dsn", dsn: "postgres://%zz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pg, err := NewPostgres(context.Background(), config.PostgresConfig{DSN: tt.dsn}, zap.NewNop())
			if err == nil || pg != nil {
				t.Fatalf("NewPostgres() = %v, %v", pg, err)
			}
			if errors.Is(err, ErrNoDSN) != tt.wantDSN {
				t.Fatalf("error = %v, ErrNoDSN expected %v", err, tt.wantDSN)
			}
		})
	}

	var nilPG *Postgres
	if err := nilPG.Ping(context.Background()); err == nil {
		t.Fatal("Ping() on nil store should fail")
	}
	nilPG.Close()
}
