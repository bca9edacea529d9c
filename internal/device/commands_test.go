package device

import "testing"

func TestCommandBuilders(t *testing.T) {
	tests := []struct {
		name    string
		build   func() (string, error)
		want    string
		wantErr bool
	}{
		{"sensor temp", func() (string, error) { return GetSensor("temp") }, "get_sensor temp", false},
		{"sensor case folded", func() (string, error) { return GetSensor("COMPASS") }, "get_sensor compass", false},
		{"sensor invalid", func() (string, error) { return GetSensor("humidity") }, "", true},
		{"pin read", func() (string, error) { return GetPin("p1") }, "get_pin p1", false},
		{"pin read invalid", func() (string, error) { return GetPin("p9") }, "", true},
		{"pin digital write", func() (string, error) { return PinWrite("d", "p0", 1) }, "pin d p0 1", false},
		{"pin analog write", func() (string, error) { return PinWrite("a", "p2", 512) }, "pin a p2 512", false},
		{"pin bad mode", func() (string, error) { return PinWrite("x", "p0", 1) }, "", true},
		{"pin bad pin", func() (string, error) { return PinWrite("d", "p7", 1) }, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.build()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v, wantErr=%v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFixedCommands(t *testing.T) {
	fixed := map[string]string{
		Tone(440, 500): "tone 440 500",
		Print(" hi "):  "print hi",
		Plot(2, 3):     "plot 2 3",
		Unplot(2, 3):   "unplot 2 3",
		Toggle(0, 4):   "toggle 0 4",
		Clear():        "clear",
		Reset():        "reset",
		Ping():         "ping",
		Version():      "version",
	}

	for got, want := range fixed {
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}
