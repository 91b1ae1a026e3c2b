// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package validation

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

type innerSettings struct {
	Mode string `koanf:"mode" validate:"oneof=auto poll none"`
}

type sampleConfig struct {
	Name   string        `koanf:"name" validate:"required"`
	Limit  int           `json:"limit" validate:"min=1,max=1000"`
	Label  string        `validate:"omitempty,min=3"`
	Inner  innerSettings `koanf:"inner"`
	Hidden string        `json:"-" validate:"omitempty"`
}

func TestGetValidator_Singleton(t *testing.T) {
	t.Parallel()

	var wg sync.WaitGroup
	seen := make(chan any, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- GetValidator()
		}()
	}
	wg.Wait()
	close(seen)

	first := GetValidator()
	for v := range seen {
		if v != first {
			t.Fatal("GetValidator returned different instances")
		}
	}
}

func TestValidateStruct_Valid(t *testing.T) {
	t.Parallel()

	cfg := sampleConfig{Name: "x", Limit: 10, Inner: innerSettings{Mode: "auto"}}
	if err := ValidateStruct(&cfg); err != nil {
		t.Fatalf("ValidateStruct() error = %v", err)
	}
}

func TestValidateStruct_Messages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		cfg       sampleConfig
		wantField string
		wantMsg   string
	}{
		{
			name:      "required uses koanf name",
			cfg:       sampleConfig{Limit: 1, Inner: innerSettings{Mode: "auto"}},
			wantField: "name",
			wantMsg:   "name is required",
		},
		{
			name:      "max uses json name",
			cfg:       sampleConfig{Name: "x", Limit: 5000, Inner: innerSettings{Mode: "auto"}},
			wantField: "limit",
			wantMsg:   "limit must be at most 1000",
		},
		{
			name:      "string min",
			cfg:       sampleConfig{Name: "x", Limit: 1, Label: "ab", Inner: innerSettings{Mode: "auto"}},
			wantField: "Label",
			wantMsg:   "Label must be at least 3 characters",
		},
		{
			name:      "nested oneof path",
			cfg:       sampleConfig{Name: "x", Limit: 1, Inner: innerSettings{Mode: "evdev"}},
			wantField: "inner.mode",
			wantMsg:   "inner.mode must be one of: auto poll none",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateStruct(&tt.cfg)
			var ve Errors
			if !errors.As(err, &ve) {
				t.Fatalf("error = %v, want Errors", err)
			}
			if len(ve) != 1 {
				t.Fatalf("got %d errors: %v", len(ve), ve)
			}
			if ve[0].Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ve[0].Field, tt.wantField)
			}
			if ve[0].Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", ve[0].Message, tt.wantMsg)
			}
		})
	}
}

func TestErrors_Error(t *testing.T) {
	t.Parallel()

	ve := Errors{{Field: "a", Message: "a is required"}, {Field: "b", Message: "b must be at least 1"}}
	if got := ve.Error(); got != "a is required; b must be at least 1" {
		t.Errorf("Error() = %q", got)
	}
	if got := strings.Join(ve.Fields(), ","); got != "a,b" {
		t.Errorf("Fields() = %q", got)
	}
	if got := (Errors{}).Error(); got != "validation failed" {
		t.Errorf("empty Error() = %q", got)
	}
}
