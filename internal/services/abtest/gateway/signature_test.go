package gateway

import (
	"testing"
	"time"
)

func TestVerifySignature(t *testing.T) {
	secret := []byte("test-secret")
	now := time.Date(2026, time.August, 30, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		ts   int64
		sig  func(ts int64) string
		want bool
	}{
		{
			name: "fresh",
			ts:   now.Unix(),
			sig:  func(ts int64) string { return MakeSignature("42", ts, secret) },
			want: true,
		},
		{
			name: "almost six hours old",
			ts:   now.Add(-6*time.Hour + time.Minute).Unix(),
			sig:  func(ts int64) string { return MakeSignature("42", ts, secret) },
			want: true,
		},
		{
			name: "six hours old",
			ts:   now.Add(-6 * time.Hour).Unix(),
			sig:  func(ts int64) string { return MakeSignature("42", ts, secret) },
			want: false,
		},
		{
			name: "future beyond window",
			ts:   now.Add(7 * time.Hour).Unix(),
			sig:  func(ts int64) string { return MakeSignature("42", ts, secret) },
			want: false,
		},
		{
			name: "wrong secret",
			ts:   now.Unix(),
			sig:  func(ts int64) string { return MakeSignature("42", ts, []byte("other")) },
			want: false,
		},
		{
			name: "wrong content ref",
			ts:   now.Unix(),
			sig:  func(ts int64) string { return MakeSignature("43", ts, secret) },
			want: false,
		},
		{
			name: "zero timestamp",
			ts:   0,
			sig:  func(ts int64) string { return MakeSignature("42", ts, secret) },
			want: false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := VerifySignature("42", tc.ts, tc.sig(tc.ts), secret, now)
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestVerifySignatureRequiresSecret(t *testing.T) {
	now := time.Now()
	sig := MakeSignature("42", now.Unix(), []byte("secret"))
	if VerifySignature("42", now.Unix(), sig, nil, now) {
		t.Fatal("expected verification to fail without a secret")
	}
}
