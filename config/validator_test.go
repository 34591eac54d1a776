package config

import (
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
)

// Test structs for validating custom validators
type EnvTestStruct struct {
	Environment string `validate:"env"`
}

type DecimalTestStruct struct {
	Amount string `validate:"decimal"`
}

func TestValidateEnvironment(t *testing.T) {
	tests := []struct {
		env     string
		wantErr bool
	}{
		{"development", false},
		{"staging", false},
		{"production", false},
		{"qa", true},
		{"", true},
		{"Production", true},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			err := validate.Struct(EnvTestStruct{Environment: tt.env})
			if (err != nil) != tt.wantErr {
				t.Errorf("env %q: error = %v, wantErr %v", tt.env, err, tt.wantErr)
			}
		})
	}
}

func TestValidateDecimal(t *testing.T) {
	tests := []struct {
		amount  string
		wantErr bool
	}{
		{"15.99", false},
		{"100", false},
		{"0", false},
		{" 4.50 ", false},
		{"-1", true},
		{"abc", true},
		{"", true},
		{"1,000", true},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			err := validate.Struct(DecimalTestStruct{Amount: tt.amount})
			if (err != nil) != tt.wantErr {
				t.Errorf("amount %q: error = %v, wantErr %v", tt.amount, err, tt.wantErr)
			}
		})
	}
}

func TestFormatValidationError(t *testing.T) {
	type sample struct {
		Name     string  `validate:"required"`
		Size     int     `validate:"min=1"`
		Limit    int     `validate:"max=3"`
		Kind     string  `validate:"oneof=a b"`
		Ratio    float64 `validate:"gte=1"`
		Rate     string  `validate:"decimal"`
		Path     string  `validate:"startswith=/"`
		Endpoint string  `validate:"hostname_port"`
	}

	err := validate.Struct(sample{
		Size:     0,
		Limit:    5,
		Kind:     "c",
		Ratio:    0.5,
		Rate:     "x",
		Path:     "metrics",
		Endpoint: "nope",
	})
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		t.Fatalf("expected validator.ValidationErrors, got %T", err)
	}

	want := map[string]string{
		"Name":     "this field is required",
		"Size":     "must be at least 1",
		"Limit":    "must be at most 3",
		"Kind":     "must be one of [a b]",
		"Ratio":    "must be greater than or equal to 1",
		"Rate":     "must be a decimal amount",
		"Path":     `must start with "/"`,
		"Endpoint": "must be a host:port address",
	}
	if len(fieldErrs) != len(want) {
		t.Fatalf("expected %d errors, got %d: %v", len(want), len(fieldErrs), fieldErrs)
	}
	for _, fe := range fieldErrs {
		got := formatValidationError(fe)
		if got != want[fe.Field()] {
			t.Errorf("%s: got %q, want %q", fe.Field(), got, want[fe.Field()])
		}
	}
}

func TestConfigError(t *testing.T) {
	err := ConfigError{Field: "Config.Server.Port", Message: "must be at least 1", Value: 0}
	if !strings.Contains(err.Error(), "Config.Server.Port") || !strings.Contains(err.Error(), "got 0") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
