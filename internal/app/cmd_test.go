package app

import "testing"

func TestParseCommand_DefaultsToServe(t *testing.T) {
	if got := ParseCommand([]string{}); got != CommandServe {
		t.Errorf("ParseCommand([]) = %q, want %q", got, CommandServe)
	}
}

func TestParseCommand_Serve(t *testing.T) {
	if got := ParseCommand([]string{"serve"}); got != CommandServe {
		t.Errorf("ParseCommand(serve) = %q, want %q", got, CommandServe)
	}
}

func TestParseCommand_Healthcheck(t *testing.T) {
	if got := ParseCommand([]string{"healthcheck"}); got != CommandHealthcheck {
		t.Errorf("ParseCommand(healthcheck) = %q, want %q", got, CommandHealthcheck)
	}
}

func TestParseCommand_UnknownDefaultsToServe(t *testing.T) {
	if got := ParseCommand([]string{"unknown"}); got != CommandServe {
		t.Errorf("ParseCommand(unknown) = %q, want %q", got, CommandServe)
	}
}

func TestParseCommand_IgnoresExtraArgs(t *testing.T) {
	if got := ParseCommand([]string{"healthcheck", "extra"}); got != CommandHealthcheck {
		t.Errorf("ParseCommand(healthcheck extra) = %q, want %q", got, CommandHealthcheck)
	}
}
