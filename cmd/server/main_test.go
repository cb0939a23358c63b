package main

import (
	"testing"

	"vendomat/machine/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", OperatorPassword: "longenoughpass"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}

	err = validateSecurityConfig(config.Config{
		AuthSecret:       "0123456789abcdef0123456789abcdef",
		OperatorPassword: "short",
	})
	if err == nil {
		t.Fatalf("expected short operator password to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret:       "0123456789abcdef0123456789abcdef",
		OperatorPassword: "longenoughpass",
	})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}
