package protocol

import (
	"errors"
	"testing"
)

func TestManualStart(t *testing.T) {
	got, err := ManualStart(42)
	if err != nil {
		t.Fatalf("ManualStart(42) error = %v", err)
	}
	if want := "MANUAL_MODE|START|42"; got != want {
		t.Errorf("ManualStart(42) = %q, want %q", got, want)
	}
}

func TestManualStartBounds(t *testing.T) {
	tests := []struct {
		speed   int
		wantErr bool
	}{
		{0, false},
		{100, false},
		{-1, true},
		{101, true},
	}
	for _, tt := range tests {
		got, err := ManualStart(tt.speed)
		if (err != nil) != tt.wantErr {
			t.Errorf("ManualStart(%d) error = %v, wantErr %v", tt.speed, err, tt.wantErr)
		}
		if tt.wantErr && got != "" {
			t.Errorf("ManualStart(%d) = %q, want empty command on error", tt.speed, got)
		}
	}
}

func TestStopCommands(t *testing.T) {
	if got := ManualStop(); got != "MANUAL_MODE|STOP" {
		t.Errorf("ManualStop() = %q", got)
	}
	if got := AutoStop(); got != "AUTO_MODE|STOP" {
		t.Errorf("AutoStop() = %q", got)
	}
}

func TestAutoStart(t *testing.T) {
	got, err := AutoStart(AutoParams{Profile: ProfileSinusoidal, MinSpeed: 10, MaxSpeed: 90, PeriodSeconds: 15})
	if err != nil {
		t.Fatalf("AutoStart() error = %v", err)
	}
	if want := "AUTO_MODE|START|Sinusoidal|10|90|15"; got != want {
		t.Errorf("AutoStart() = %q, want %q", got, want)
	}

	got, err = AutoStart(AutoParams{Profile: ProfileRamp, MinSpeed: 0, MaxSpeed: 0, PeriodSeconds: 2})
	if err != nil {
		t.Fatalf("AutoStart() error = %v", err)
	}
	if want := "AUTO_MODE|START|Ramp|0|0|2"; got != want {
		t.Errorf("AutoStart() = %q, want %q", got, want)
	}
}

func TestAutoStartAppLabels(t *testing.T) {
	tests := []struct {
		profile Profile
		want    string
	}{
		{ProfileRamp, "AUTO_MODE|START|Water-Based (Rampa)|10|90|15"},
		{ProfileSinusoidal, "AUTO_MODE|START|Oil (Sinusoidal)|10|90|15"},
	}
	for _, tt := range tests {
		got, err := AppLabels.AutoStart(AutoParams{Profile: tt.profile, MinSpeed: 10, MaxSpeed: 90, PeriodSeconds: 15})
		if err != nil {
			t.Fatalf("AppLabels.AutoStart(%v) error = %v", tt.profile, err)
		}
		if got != tt.want {
			t.Errorf("AppLabels.AutoStart(%v) = %q, want %q", tt.profile, got, tt.want)
		}
	}
}

func TestAutoStartRejectsBadLabel(t *testing.T) {
	p := AutoParams{Profile: ProfileRamp, MinSpeed: 1, MaxSpeed: 2, PeriodSeconds: 3}
	for _, l := range []Labels{{Sinusoidal: "Sinusoidal"}, {Ramp: "Ramp|Fast"}, {Ramp: "Ramp\n"}} {
		var fe *FieldError
		if _, err := l.AutoStart(p); !errors.As(err, &fe) || fe.Field != "profile" {
			t.Errorf("Labels%+v.AutoStart() error = %v, want profile FieldError", l, err)
		}
	}
}

func TestParseLabels(t *testing.T) {
	tests := []struct {
		name    string
		want    Labels
		wantErr bool
	}{
		{"", ShortLabels, false},
		{"short", ShortLabels, false},
		{"App", AppLabels, false},
		{"rampa", Labels{}, true},
	}
	for _, tt := range tests {
		got, err := ParseLabels(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLabels(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLabels(%q) = %+v, want %+v", tt.name, got, tt.want)
		}
	}
}

func TestAutoStartRejects(t *testing.T) {
	valid := AutoParams{Profile: ProfileRamp, MinSpeed: 10, MaxSpeed: 90, PeriodSeconds: 15}
	tests := []struct {
		name   string
		modify func(*AutoParams)
		field  string
	}{
		{"period below range", func(p *AutoParams) { p.PeriodSeconds = 1 }, "period"},
		{"period above range", func(p *AutoParams) { p.PeriodSeconds = 51 }, "period"},
		{"unknown profile", func(p *AutoParams) { p.Profile = 0 }, "profile"},
		{"negative min", func(p *AutoParams) { p.MinSpeed = -5 }, "min_speed"},
		{"max above range", func(p *AutoParams) { p.MaxSpeed = 150 }, "max_speed"},
		{"min above max", func(p *AutoParams) { p.MinSpeed = 95 }, "min_speed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.modify(&p)
			got, err := AutoStart(p)
			if err == nil {
				t.Fatalf("AutoStart(%+v) = %q, want error", p, got)
			}
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("error %v is not a *FieldError", err)
			}
			if fe.Field != tt.field {
				t.Errorf("FieldError.Field = %q, want %q", fe.Field, tt.field)
			}
		})
	}
}

func TestAutoStartPeriodEdges(t *testing.T) {
	for _, period := range []int{MinPeriod, MaxPeriod} {
		if _, err := AutoStart(AutoParams{Profile: ProfileRamp, MinSpeed: 1, MaxSpeed: 2, PeriodSeconds: period}); err != nil {
			t.Errorf("AutoStart(period=%d) error = %v", period, err)
		}
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"0", 0, false},
		{"42", 42, false},
		{"007", 7, false},
		{"", 0, true},
		{"-3", 0, true},
		{"+3", 0, true},
		{"4.5", 0, true},
		{" 4", 0, true},
		{"abc", 0, true},
		{"99999999999999999999999", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseNumber("speed", tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseNumber(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseNumber(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseNumberNormalisesLeadingZeros(t *testing.T) {
	n, err := ParseNumber("max_speed", "090")
	if err != nil {
		t.Fatalf("ParseNumber() error = %v", err)
	}
	got, err := AutoStart(AutoParams{Profile: ProfileRamp, MinSpeed: 0, MaxSpeed: n, PeriodSeconds: 10})
	if err != nil {
		t.Fatalf("AutoStart() error = %v", err)
	}
	if want := "AUTO_MODE|START|Ramp|0|90|10"; got != want {
		t.Errorf("AutoStart() = %q, want %q", got, want)
	}
}

func TestParseProfile(t *testing.T) {
	tests := []struct {
		in   string
		want Profile
	}{
		{"Ramp", ProfileRamp},
		{"water-based", ProfileRamp},
		{"Water-Based (Rampa)", ProfileRamp},
		{"Sinusoidal", ProfileSinusoidal},
		{"oil", ProfileSinusoidal},
		{"Oil (Sinusoidal)", ProfileSinusoidal},
	}
	for _, tt := range tests {
		got, err := ParseProfile(tt.in)
		if err != nil {
			t.Errorf("ParseProfile(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseProfile(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseProfile("square"); err == nil {
		t.Error("ParseProfile(\"square\") should fail")
	}
}
