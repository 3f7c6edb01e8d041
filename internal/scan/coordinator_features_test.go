package scan

import (
	"context"
	"fmt"
	"image"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/MeKo-Tech/qrlens/internal/frame"
	"github.com/MeKo-Tech/qrlens/internal/testutil"
	"github.com/cucumber/godog"
)

const stepTimeout = 2 * time.Second

type scenario struct {
	dec        *testutil.ScriptedDecoder
	frames     *testutil.FrameTracker
	coord      *Coordinator
	detections chan Detection
	decoding   []*frame.Frame
}

func (s *scenario) aScanCoordinator() error {
	s.dec = testutil.NewScriptedDecoder()
	s.frames = testutil.NewFrameTracker()
	s.detections = make(chan Detection, 8)
	s.decoding = nil
	s.coord = NewCoordinator(s.dec, WithDetectionHandler(func(d Detection) { s.detections <- d }))
	return nil
}

func (s *scenario) framesArrive(n int) error {
	for i := 0; i < n; i++ {
		s.coord.OnFrame(s.frames.New(image.NewGray(image.Rect(0, 0, 4, 4))))
	}
	// Collect submissions so later steps see a settled count.
	for {
		f, ok := s.dec.NextStarted(20 * time.Millisecond)
		if !ok {
			return nil
		}
		s.decoding = append(s.decoding, f)
	}
}

func (s *scenario) aFrameArrives() error {
	return s.framesArrive(1)
}

func (s *scenario) decodesSubmitted(n int) error {
	if got := s.dec.Calls(); got != n {
		return fmt.Errorf("expected %d decodes, got %d", n, got)
	}
	return nil
}

func (s *scenario) allButDecodingReleased() error {
	pending := s.frames.Unreleased()
	if len(pending) != 1 || len(s.decoding) == 0 || pending[0] != s.decoding[len(s.decoding)-1].Seq {
		return fmt.Errorf("unexpected unreleased frames: %v", pending)
	}
	return nil
}

func (s *scenario) decoderReturns(list string) error {
	var payloads []string
	for _, p := range strings.Split(list, ",") {
		payloads = append(payloads, strings.Trim(strings.TrimSpace(p), `"`))
	}
	if !s.dec.TryReply(payloads, nil, stepTimeout) {
		return fmt.Errorf("no decode pending")
	}
	return nil
}

func (s *scenario) decoderFails() error {
	if !s.dec.TryReply(nil, fmt.Errorf("corrupt frame"), stepTimeout) {
		return fmt.Errorf("no decode pending")
	}
	return s.waitIdle()
}

func (s *scenario) waitIdle() error {
	deadline := time.Now().Add(stepTimeout)
	for s.coord.InFlight() {
		if time.Now().After(deadline) {
			return fmt.Errorf("decode still in flight")
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

func (s *scenario) isDetected(payload string) error {
	select {
	case d := <-s.detections:
		if d.Payload != payload {
			return fmt.Errorf("expected %q, got %q", payload, d.Payload)
		}
		return nil
	case <-time.After(stepTimeout):
		return fmt.Errorf("nothing detected")
	}
}

func (s *scenario) coordinatorIs(state string) error {
	if got := s.coord.State().String(); got != state {
		return fmt.Errorf("expected state %s, got %s", state, got)
	}
	return nil
}

func (s *scenario) resultDismissed() error {
	s.coord.Resume()
	return nil
}

func (s *scenario) facingChanges() error {
	s.coord.Reset()
	return nil
}

func (s *scenario) noDecodeInFlight() error {
	if s.coord.InFlight() {
		return fmt.Errorf("decode in flight")
	}
	return nil
}

func initializeScenario(sc *godog.ScenarioContext) {
	s := &scenario{}

	sc.Step(`^a scan coordinator$`, s.aScanCoordinator)
	sc.Step(`^a frame arrives$`, s.aFrameArrives)
	sc.Step(`^(\d+) frames arrive$`, s.framesArrive)
	sc.Step(`^(\d+) decodes? (?:has|have) been submitted$`, s.decodesSubmitted)
	sc.Step(`^every frame except the one being decoded has been released$`, s.allButDecodingReleased)
	sc.Step(`^the decoder returns (.+)$`, s.decoderReturns)
	sc.Step(`^the decoder fails$`, s.decoderFails)
	sc.Step(`^"([^"]*)" is detected$`, s.isDetected)
	sc.Step(`^the coordinator is (scanning|suspended)$`, s.coordinatorIs)
	sc.Step(`^the result view is dismissed$`, s.resultDismissed)
	sc.Step(`^the camera facing changes$`, s.facingChanges)
	sc.Step(`^no decode is in flight$`, s.noDecodeInFlight)

	sc.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		if s.coord != nil {
			s.coord.Close()
		}
		return ctx, nil
	})
}

func TestFeatures(t *testing.T) {
	format := os.Getenv("GODOG_FORMAT")
	if format == "" {
		format = "progress"
	}

	suite := godog.TestSuite{
		ScenarioInitializer: initializeScenario,
		Options: &godog.Options{
			Format:   format,
			Paths:    []string{"features"},
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
