package device

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQueryResolvesWithNextLine(t *testing.T) {
	var c Correlator

	sent := make(chan string, 1)
	send := func(cmd string) error {
		sent <- cmd
		return nil
	}

	go func() {
		<-sent
		// Whatever the next line says, it is the answer.
		if !c.Offer("microbit_V2026.01.1") {
			t.Error("armed correlator did not claim the line")
		}
	}()

	got, err := c.Query(send, "version", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "microbit_V2026.01.1" {
		t.Errorf("got %q, want the captured line", got)
	}
}

func TestQueryCapturesArbitraryContent(t *testing.T) {
	var c Correlator

	send := func(string) error {
		go c.Offer("pong")
		return nil
	}

	got, err := c.Query(send, "version", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "pong" {
		t.Errorf("got %q, want pong: correlation is by order, not content", got)
	}
}

func TestSecondQueryFailsFast(t *testing.T) {
	var c Correlator

	started := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = c.Query(func(string) error {
			close(started)
			return nil
		}, "version", time.Second)
	}()

	<-started
	_, err := c.Query(func(string) error {
		t.Error("second query must fail before sending")
		return nil
	}, "version", time.Second)
	if !errors.Is(err, ErrQueryOutstanding) {
		t.Errorf("got %v, want ErrQueryOutstanding", err)
	}

	c.Offer("done")
	wg.Wait()
}

func TestQueryTimesOut(t *testing.T) {
	var c Correlator

	_, err := c.Query(func(string) error { return nil }, "version", 20*time.Millisecond)
	if !errors.Is(err, ErrProtocolTimeout) {
		t.Fatalf("got %v, want ErrProtocolTimeout", err)
	}

	// The claim is released: late lines bypass the correlator.
	if c.Offer("too late") {
		t.Error("line claimed after timeout")
	}
}

func TestQuerySendFailureDisarms(t *testing.T) {
	var c Correlator

	boom := errors.New("write failed")
	_, err := c.Query(func(string) error { return boom }, "version", time.Second)
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want send error", err)
	}

	if c.Offer("stray") {
		t.Error("line claimed after failed send")
	}
}

func TestOfferWithoutQueryBypasses(t *testing.T) {
	var c Correlator

	if c.Offer("unsolicited") {
		t.Error("idle correlator must not claim lines")
	}
}
