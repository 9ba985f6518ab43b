// Command amesd is a reference host for the ames transport: it owns the
// UDP socket, the timer wheel, and the event loop that feeds tasks into
// the transport's Dispatch and executes the effects it returns. Nothing
// here is part of the transport's own correctness — a production host
// could swap this entire file for something else.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arvo-os/ames/pkg/ames/core"
	"github.com/arvo-os/ames/pkg/ames/definition"
	"github.com/arvo-os/ames/pkg/ames/types"
)

// stubPKI is a placeholder oracle that never resolves anything; a real
// host would back this with a local copy of the identity ledger and push
// PKIResult tasks onto the event channel as lookups complete.
type stubPKI struct {
	log  definition.Logger
	feed chan<- core.Task
}

func (s *stubPKI) Lookup(ship types.Ship) {
	s.log.Debugf("pki lookup requested for %s (no oracle wired, ignoring)", ship)
}

// timerWheel tracks the single outstanding time.Timer per TimerWire the
// transport has asked to be armed, canceling and replacing as directed by
// EffectRest/EffectWait.
type timerWheel struct {
	mu     sync.Mutex
	timers map[core.TimerWire]*time.Timer
	feed   chan<- core.Task
}

func newTimerWheel(feed chan<- core.Task) *timerWheel {
	return &timerWheel{timers: make(map[core.TimerWire]*time.Timer), feed: feed}
}

func (w *timerWheel) rest(wire core.TimerWire) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[wire]; ok {
		t.Stop()
		delete(w.timers, wire)
	}
}

func (w *timerWheel) wait(wire core.TimerWire, when time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[wire]; ok {
		t.Stop()
	}
	w.timers[wire] = time.AfterFunc(time.Until(when), func() {
		w.feed <- core.Task{Kind: core.TaskWake, Timer: wire}
	})
}

func main() {
	addr := flag.String("listen", ":13413", "UDP address to listen on")
	metricsAddr := flag.String("metrics", ":9090", "address to serve /metrics on")
	shipHex := flag.String("ship", "", "hex-encoded 16-byte ship address; random comet address if empty")
	flag.Parse()

	log := definition.NewDefaultLogger()

	ourShip, err := parseOrGenerateShip(*shipHex)
	if err != nil {
		log.Fatalf("ames: %v", err)
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		log.Fatalf("ames: generating identity key: %v", err)
	}

	registry := prometheus.NewRegistry()
	metrics := definition.NewMetrics(registry)

	tasks := make(chan core.Task, 256)
	wheel := newTimerWheel(tasks)
	pki := &stubPKI{log: log, feed: tasks}

	transport := core.NewTransport(ourShip, types.Life(1), priv, pki, log, metrics)

	conn, err := net.ListenPacket("udp", *addr)
	if err != nil {
		log.Fatalf("ames: listening on %s: %v", *addr, err)
	}
	defer conn.Close()

	go readLoop(conn, tasks, log)

	go func() {
		http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		log.Infof("ames: serving metrics on %s", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			log.Errorf("ames: metrics server: %v", err)
		}
	}()

	log.Infof("ames: %s listening on %s", ourShip, *addr)

	stirTicker := time.NewTicker(5 * time.Second)
	defer stirTicker.Stop()

	for {
		select {
		case task := <-tasks:
			dispatch(transport, conn, wheel, task, log)
		case <-stirTicker.C:
			dispatch(transport, conn, wheel, core.Task{Kind: core.TaskStir}, log)
		}
	}
}

func parseOrGenerateShip(hexAddr string) (types.Ship, error) {
	var s types.Ship
	if hexAddr == "" {
		if _, err := rand.Read(s[:]); err != nil {
			return s, err
		}
		return s, nil
	}
	raw, err := hex.DecodeString(hexAddr)
	if err != nil {
		return s, err
	}
	copy(s[16-len(raw):], raw)
	return s, nil
}

func readLoop(conn net.PacketConn, tasks chan<- core.Task, log definition.Logger) {
	buf := make([]byte, 65536)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			log.Errorf("ames: read: %v", err)
			return
		}
		blob := append([]byte(nil), buf[:n]...)
		tasks <- core.Task{
			Kind: core.TaskHear,
			Lane: types.OpaqueLane([]byte(addr.String())),
			Blob: blob,
		}
	}
}

// dispatch runs one task through the transport and executes every effect
// it produced, in order. This is the only place effects are
// interpreted; the transport itself never touches the network or a clock
// directly.
func dispatch(t *core.Transport, conn net.PacketConn, wheel *timerWheel, task core.Task, log definition.Logger) {
	now := time.Now()
	for _, effect := range t.Dispatch(task, now) {
		switch effect.Kind {
		case core.EffectSend:
			addr, err := net.ResolveUDPAddr("udp", string(effect.Lane.Opaque()))
			if err != nil {
				log.Errorf("ames: resolving lane: %v", err)
				continue
			}
			if _, err := conn.WriteTo(effect.Blob, addr); err != nil {
				log.Errorf("ames: write: %v", err)
			}
		case core.EffectWait:
			wheel.wait(effect.Timer, effect.When)
		case core.EffectRest:
			wheel.rest(effect.Timer)
		case core.EffectGive:
			log.Debugf("ames: give %+v", effect.Give)
		case core.EffectLog:
			log.Info(effect.Text)
		}
	}
}
