package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ahk4918/microlink/internal/transport"
)

type fakeConn struct {
	mu     sync.Mutex
	kind   transport.Kind
	lines  []string
	closed bool
	onDrop func(error)
}

func (f *fakeConn) Kind() transport.Kind { return f.kind }
func (f *fakeConn) WriteLine(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return transport.ErrConnClosed
	}
	f.lines = append(f.lines, line)
	return nil
}
func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
func (f *fakeConn) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lines)
}

type fakeSerial struct {
	mu         sync.Mutex
	candidates []transport.Candidate
	probeErr   error
	failOpens  map[string]error
	dialed     []string
	conn       *fakeConn
	onLine     func(string)
}

func (f *fakeSerial) Probe() ([]transport.Candidate, error) {
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	if len(f.candidates) == 0 {
		return nil, transport.ErrNoCandidates
	}
	return f.candidates, nil
}

func (f *fakeSerial) Dial(c transport.Candidate, onLine func(string), onDrop func(error)) (transport.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dialed = append(f.dialed, c.ID)
	if err, ok := f.failOpens[c.ID]; ok {
		return nil, err
	}
	f.conn = &fakeConn{kind: transport.KindSerial, onDrop: onDrop}
	f.onLine = onLine
	return f.conn, nil
}

func (f *fakeSerial) liveConn() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn
}

func (f *fakeSerial) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dialed)
}

type fakeWireless struct {
	candidates []transport.Candidate
	scanErr    error
	dialErr    error
	dialed     []string
	conn       *fakeConn
}

func (f *fakeWireless) Scan() ([]transport.Candidate, error) {
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	if len(f.candidates) == 0 {
		return nil, transport.ErrNoCandidates
	}
	return f.candidates, nil
}

func (f *fakeWireless) Dial(c transport.Candidate, onLine func(string), onDrop func(error)) (transport.Conn, error) {
	f.dialed = append(f.dialed, c.ID)
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	f.conn = &fakeConn{kind: transport.KindWireless, onDrop: onDrop}
	return f.conn, nil
}

func serialCandidates(ids ...string) []transport.Candidate {
	var cs []transport.Candidate
	for _, id := range ids {
		cs = append(cs, transport.Candidate{Kind: transport.KindSerial, ID: id, Confidence: 1})
	}
	return cs
}

func noSelect(t *testing.T) Selector {
	return func([]transport.Candidate) (int, error) {
		t.Error("selector must not run")
		return 0, nil
	}
}

func TestConnectPrefersSerial(t *testing.T) {
	ser := &fakeSerial{candidates: serialCandidates("/dev/ttyACM0")}
	wl := &fakeWireless{candidates: []transport.Candidate{{ID: "aa:bb"}}}
	m := NewManager(ModeBoth, ser, wl, noSelect(t), nil)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := m.State(); got != StateConnectedSerial {
		t.Errorf("state %s, want %s", got, StateConnectedSerial)
	}
	if len(wl.dialed) != 0 {
		t.Error("wireless dialed although serial succeeded")
	}
}

func TestConnectTriesPortsInEnumerationOrder(t *testing.T) {
	ser := &fakeSerial{
		candidates: serialCandidates("/dev/ttyACM0", "/dev/ttyACM1", "/dev/ttyACM2"),
		failOpens: map[string]error{
			"/dev/ttyACM0": errors.New("port busy"),
			"/dev/ttyACM1": errors.New("permission denied"),
		},
	}
	m := NewManager(ModeSerial, ser, &fakeWireless{}, noSelect(t), nil)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	want := []string{"/dev/ttyACM0", "/dev/ttyACM1", "/dev/ttyACM2"}
	if len(ser.dialed) != len(want) {
		t.Fatalf("dialed %v, want %v", ser.dialed, want)
	}
	for i := range want {
		if ser.dialed[i] != want[i] {
			t.Fatalf("dialed %v, want strict enumeration order %v", ser.dialed, want)
		}
	}
	if got := m.State(); got != StateConnectedSerial {
		t.Errorf("state %s, want %s", got, StateConnectedSerial)
	}
}

func TestConnectFallsBackToWireless(t *testing.T) {
	ser := &fakeSerial{} // no candidates
	wl := &fakeWireless{candidates: []transport.Candidate{{Kind: transport.KindWireless, ID: "aa:bb", Name: "BBC micro:bit"}}}
	m := NewManager(ModeBoth, ser, wl, noSelect(t), nil)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := m.State(); got != StateConnectedWireless {
		t.Errorf("state %s, want %s", got, StateConnectedWireless)
	}
}

func TestSingleWirelessCandidateNeedsNoPrompt(t *testing.T) {
	wl := &fakeWireless{candidates: []transport.Candidate{{ID: "aa:bb"}}}
	m := NewManager(ModeWireless, &fakeSerial{}, wl, noSelect(t), nil)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if len(wl.dialed) != 1 || wl.dialed[0] != "aa:bb" {
		t.Errorf("dialed %v, want the single candidate", wl.dialed)
	}
}

func TestMultipleWirelessCandidatesUseSelector(t *testing.T) {
	wl := &fakeWireless{candidates: []transport.Candidate{{ID: "aa:bb"}, {ID: "cc:dd"}}}
	m := NewManager(ModeWireless, &fakeSerial{}, wl, func(cs []transport.Candidate) (int, error) {
		if len(cs) != 2 {
			t.Errorf("selector saw %d candidates, want 2", len(cs))
		}
		return 1, nil
	}, nil)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if len(wl.dialed) != 1 || wl.dialed[0] != "cc:dd" {
		t.Errorf("dialed %v, want the selected candidate", wl.dialed)
	}
}

func TestEmptyWirelessScanIsQuietFailure(t *testing.T) {
	m := NewManager(ModeWireless, &fakeSerial{}, &fakeWireless{}, noSelect(t), nil)

	err := m.Connect(context.Background())
	if !errors.Is(err, ErrTransportUnavailable) {
		t.Fatalf("got %v, want ErrTransportUnavailable", err)
	}
	if got := m.State(); got != StateDisconnected {
		t.Errorf("state %s, want %s", got, StateDisconnected)
	}
}

func TestDropTriggersAutomaticReprobe(t *testing.T) {
	ser := &fakeSerial{candidates: serialCandidates("/dev/ttyACM0")}
	m := NewManager(ModeSerial, ser, &fakeWireless{}, noSelect(t), nil)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	first := ser.liveConn()

	// Simulate the read pump hitting end-of-stream.
	first.onDrop(errors.New("EOF"))

	deadline := time.After(2 * time.Second)
	for m.State() != StateConnectedSerial || ser.liveConn() == first {
		select {
		case <-deadline:
			t.Fatalf("no automatic reconnect; state=%s", m.State())
		case <-time.After(5 * time.Millisecond):
		}
	}

	if !first.closed {
		t.Error("dropped connection not closed")
	}
	if got := ser.dialCount(); got != 2 {
		t.Errorf("dialed %d times, want 2", got)
	}
}

func TestInboundLinesRouteToObserverAndCorrelator(t *testing.T) {
	ser := &fakeSerial{candidates: serialCandidates("/dev/ttyACM0")}
	var observed []string
	m := NewManager(ModeSerial, ser, &fakeWireless{}, noSelect(t), func(line string) {
		observed = append(observed, line)
	})

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	ser.onLine("unsolicited chatter")

	done := make(chan struct{})
	go func() {
		defer close(done)
		got, err := m.Query("version", time.Second)
		if err != nil {
			t.Errorf("query: %v", err)
		}
		if got != "microbit_V2026.01.1" {
			t.Errorf("query got %q", got)
		}
	}()

	// Wait until the version command hit the wire, then answer.
	deadline := time.After(time.Second)
	for {
		if ser.liveConn().sentCount() > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("version command never sent")
		case <-time.After(2 * time.Millisecond):
		}
	}
	ser.onLine("microbit_V2026.01.1")
	<-done

	if len(observed) != 1 || observed[0] != "unsolicited chatter" {
		t.Errorf("observer saw %v", observed)
	}
}

func TestWriteLineWithoutConnection(t *testing.T) {
	m := NewManager(ModeSerial, &fakeSerial{}, &fakeWireless{}, noSelect(t), nil)
	if err := m.WriteLine("ping"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("got %v, want ErrNotConnected", err)
	}
}

func TestShutdownStopsReconnects(t *testing.T) {
	ser := &fakeSerial{candidates: serialCandidates("/dev/ttyACM0")}
	m := NewManager(ModeSerial, ser, &fakeWireless{}, noSelect(t), nil)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn := ser.liveConn()
	m.Shutdown()

	if !conn.closed {
		t.Error("shutdown did not close the live connection")
	}
	if err := m.Connect(context.Background()); !errors.Is(err, ErrShutDown) {
		t.Errorf("got %v, want ErrShutDown", err)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"both", ModeBoth, false},
		{"", ModeBoth, false},
		{"SERIAL", ModeSerial, false},
		{"ble", ModeWireless, false},
		{"wireless", ModeWireless, false},
		{"carrier-pigeon", ModeBoth, true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) err=%v, wantErr=%v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
