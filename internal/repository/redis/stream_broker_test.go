package redis

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestClaimDue_OneWinnerPerWindow(t *testing.T) {
	b := &StreamBroker{leaseWindow: time.Minute}

	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if b.claimDue() {
					wins.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("claim winners = %d, want exactly 1 inside one lease window", got)
	}
}

func TestClaimDue_ReopensAfterWindow(t *testing.T) {
	b := &StreamBroker{leaseWindow: 10 * time.Millisecond}

	if !b.claimDue() {
		t.Fatal("first claim should be due")
	}
	if b.claimDue() {
		t.Fatal("claim inside the window should be refused")
	}

	time.Sleep(15 * time.Millisecond)

	if !b.claimDue() {
		t.Fatal("claim after the window should be due again")
	}
}
